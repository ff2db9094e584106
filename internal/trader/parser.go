package trader

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aristath/theta/internal/domain"
)

// maxTickerLen rejects tokens that are clearly not ticker symbols.
const maxTickerLen = 5

var (
	tickerPattern  = regexp.MustCompile(`^[A-Z]{1,5}$`)
	tradeBlockRe   = regexp.MustCompile(`===TRADE_(\d+)===`)
	endTradeRe     = regexp.MustCompile(`===END_TRADE_\d+===`)
	momentumValues = map[string]bool{"bullish": true, "bearish": true, "neutral": true}
)

// ScanResult is the parsed morning scan response.
type ScanResult struct {
	MarketMood      domain.MarketMood
	TrendingTickers []string
	SectorMomentum  map[string]string
	CautionFlags    []string
	Narrative       string
}

// parseScanResponse extracts the scan fields from an LLM response. Never
// fails; missing sections leave zero values.
func parseScanResponse(text string) ScanResult {
	result := ScanResult{
		MarketMood:     domain.MoodNeutral,
		SectorMomentum: map[string]string{},
	}

	if mood := extractSection(text, "===MARKET_MOOD===", "===END_MOOD==="); mood != "" {
		switch m := domain.MarketMood(strings.ToLower(firstLine(mood))); m {
		case domain.MoodBullish, domain.MoodBearish, domain.MoodNeutral, domain.MoodMixed:
			result.MarketMood = m
		}
	}

	if tickers := extractSection(text, "===TRENDING_TICKERS===", "===END_TICKERS==="); tickers != "" {
		result.TrendingTickers = parseTickerList(tickers)
	}

	if sectors := extractSection(text, "===SECTOR_MOMENTUM===", "===END_SECTORS==="); sectors != "" {
		for _, line := range strings.Split(sectors, "\n") {
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			name = strings.TrimSpace(name)
			value = strings.ToLower(strings.TrimSpace(value))
			if name != "" && momentumValues[value] {
				result.SectorMomentum[name] = value
			}
		}
	}

	if cautions := extractSection(text, "===CAUTION_FLAGS===", "===END_CAUTIONS==="); cautions != "" {
		for _, line := range strings.Split(cautions, "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "-") {
				if flag := strings.TrimSpace(strings.TrimPrefix(line, "-")); flag != "" {
					result.CautionFlags = append(result.CautionFlags, flag)
				}
			}
		}
	}

	result.Narrative = extractSection(text, "===NARRATIVE===", "===END_NARRATIVE===")
	return result
}

// parseTickerList splits on commas and newlines, upper-cases, and keeps
// only plausible ticker tokens.
func parseTickerList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	var tickers []string
	seen := map[string]bool{}
	for _, f := range fields {
		token := strings.ToUpper(strings.TrimSpace(strings.Trim(strings.TrimSpace(f), "$*")))
		if len(token) == 0 || len(token) > maxTickerLen {
			continue
		}
		if !tickerPattern.MatchString(token) || seen[token] {
			continue
		}
		seen[token] = true
		tickers = append(tickers, token)
	}
	return tickers
}

// parseSelectionResponse extracts trade picks. Three framings are tolerated
// in order: full delimited blocks, start markers without end markers, and
// bare blocks split on TICKER: lines. Blocks without both a ticker and a
// strategy are discarded.
func parseSelectionResponse(text string) []domain.TradePick {
	var blocks []string

	if tradeBlockRe.MatchString(text) && endTradeRe.MatchString(text) {
		starts := tradeBlockRe.FindAllStringIndex(text, -1)
		ends := endTradeRe.FindAllStringIndex(text, -1)
		for i, s := range starts {
			if i < len(ends) && ends[i][0] > s[1] {
				blocks = append(blocks, text[s[1]:ends[i][0]])
			}
		}
	}

	if len(blocks) == 0 && tradeBlockRe.MatchString(text) {
		parts := tradeBlockRe.Split(text, -1)
		if len(parts) > 1 {
			blocks = parts[1:]
		}
	}

	if len(blocks) == 0 {
		blocks = splitOnTickerLines(text)
	}

	var picks []domain.TradePick
	for _, block := range blocks {
		if pick, ok := parseTradeBlock(block); ok {
			picks = append(picks, pick)
		}
	}
	return picks
}

// splitOnTickerLines treats each standalone "TICKER: XXX" line as the start
// of a new block.
func splitOnTickerLines(text string) []string {
	lines := strings.Split(text, "\n")
	var blocks []string
	var current []string
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(strings.ToUpper(line)), "TICKER:") {
			if len(current) > 0 {
				blocks = append(blocks, strings.Join(current, "\n"))
			}
			current = []string{line}
			continue
		}
		if len(current) > 0 {
			current = append(current, line)
		}
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

func parseTradeBlock(block string) (domain.TradePick, bool) {
	fields := parseKeyValueLines(block)

	pick := domain.TradePick{
		Ticker:           strings.ToUpper(fields["TICKER"]),
		Strategy:         domain.Strategy(strings.ToLower(fields["STRATEGY"])),
		Expiry:           fields["EXPIRY"],
		Sector:           fields["SECTOR"],
		Rationale:        fields["RATIONALE"],
		Strike:           parseNumber(fields["STRIKE"]),
		DTE:              int(parseNumber(fields["DTE"])),
		Contracts:        int(parseNumber(fields["CONTRACTS"])),
		EstimatedPremium: parseNumber(fields["ESTIMATED_PREMIUM"]),
		SpreadWidth:      parseNumber(fields["SPREAD_WIDTH"]),
		StrikeSell:       parseNumber(fields["STRIKE_SELL"]),
		StrikeBuy:        parseNumber(fields["STRIKE_BUY"]),
		Confidence:       parseNumber(fields["CONFIDENCE"]),
	}

	if pick.Ticker == "" || !tickerPattern.MatchString(pick.Ticker) || pick.Strategy == "" {
		return domain.TradePick{}, false
	}
	if pick.Strike == 0 && pick.StrikeSell != 0 {
		pick.Strike = pick.StrikeSell
	}
	if pick.Contracts <= 0 {
		pick.Contracts = 1
	}
	return pick, true
}

// ReviewResult is the parsed post-close review response.
type ReviewResult struct {
	WhatWorked   string
	WhatFailed   string
	Lesson       string
	ShouldRepeat bool
	NewRule      string
	RuleCategory domain.RuleCategory
	FullReview   string
}

// parseReviewResponse extracts the review fields. NewRule is empty when the
// model answered NONE.
func parseReviewResponse(text string) ReviewResult {
	body := extractSection(text, "===REVIEW===", "===END_REVIEW===")
	if body == "" {
		body = text
	}
	fields := parseKeyValueLines(body)

	result := ReviewResult{
		WhatWorked:   fields["WHAT_WORKED"],
		WhatFailed:   fields["WHAT_FAILED"],
		Lesson:       fields["LESSON"],
		ShouldRepeat: strings.EqualFold(strings.TrimSpace(fields["SHOULD_REPEAT"]), "YES"),
		FullReview:   fields["FULL_REVIEW"],
	}

	rule := strings.TrimSpace(fields["NEW_RULE"])
	if !strings.EqualFold(rule, "NONE") {
		result.NewRule = rule
	}

	switch cat := domain.RuleCategory(strings.ToLower(strings.TrimSpace(fields["RULE_CATEGORY"]))); cat {
	case domain.RuleCategoryEntry, domain.RuleCategoryExit, domain.RuleCategoryRisk,
		domain.RuleCategorySector, domain.RuleCategoryTiming, domain.RuleCategoryGeneral:
		result.RuleCategory = cat
	default:
		result.RuleCategory = domain.RuleCategoryGeneral
	}
	return result
}

// extractSection returns the trimmed text between two markers, or "" when
// either marker is absent.
func extractSection(text, start, end string) string {
	i := strings.Index(text, start)
	if i < 0 {
		return ""
	}
	rest := text[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:j])
}

// parseKeyValueLines reads "KEY: value" lines into a map with upper-cased
// keys.
func parseKeyValueLines(block string) map[string]string {
	fields := map[string]string{}
	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		if key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

// parseNumber reads a float from a field value, tolerating $ and % affixes
// and thousands separators. Returns 0 on anything unparseable.
func parseNumber(raw string) float64 {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
