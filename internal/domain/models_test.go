package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTradeIsOpen(t *testing.T) {
	tests := []struct {
		name   string
		status TradeStatus
		want   bool
	}{
		{"open trade", TradeStatusOpen, true},
		{"closed trade", TradeStatusClosed, false},
		{"cancelled trade", TradeStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := Trade{Status: tt.status}
			assert.Equal(t, tt.want, trade.IsOpen())
		})
	}
}
