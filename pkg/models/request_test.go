package models

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() *PaymentRequest {
	return &PaymentRequest{
		OrderID:   "order-1",
		Amount:    big.NewInt(1000),
		Token:     NativeToken("ETH", 18, 1),
		Recipient: common.HexToAddress("0x1234567890123456789012345678901234567890"),
		ChainID:   1,
	}
}

func TestValidateAcceptsWellFormedRequest(t *testing.T) {
	require.NoError(t, validRequest().Validate())
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount *big.Int
	}{
		{"nil amount", nil},
		{"zero amount", big.NewInt(0)},
		{"negative amount", big.NewInt(-5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			req.Amount = tt.amount
			assert.ErrorIs(t, req.Validate(), ErrInvalidAmount)
		})
	}
}

func TestValidateAmountReportedFirst(t *testing.T) {
	// A request that is broken in several ways still reports the amount
	// problem first.
	req := validRequest()
	req.Amount = big.NewInt(0)
	req.Recipient = common.Address{}
	req.Deadline = time.Now().Add(-time.Hour).Unix()

	assert.ErrorIs(t, req.Validate(), ErrInvalidAmount)
}

func TestValidateRecipient(t *testing.T) {
	req := validRequest()
	req.Recipient = common.Address{}
	assert.ErrorIs(t, req.Validate(), ErrInvalidAddress)
}

func TestValidateToken(t *testing.T) {
	t.Run("erc20 without address", func(t *testing.T) {
		req := validRequest()
		req.Token = PaymentToken{Symbol: "USDC", Decimals: 6, ChainID: 1}
		assert.ErrorIs(t, req.Validate(), ErrInvalidToken)
	})

	t.Run("token on wrong chain", func(t *testing.T) {
		req := validRequest()
		req.Token = NativeToken("POL", 18, 137)
		assert.ErrorIs(t, req.Validate(), ErrInvalidToken)
	})
}

func TestValidateDeadline(t *testing.T) {
	req := validRequest()
	req.Deadline = time.Now().Add(-time.Minute).Unix()
	assert.ErrorIs(t, req.Validate(), ErrDeadlinePassed)

	req.Deadline = time.Now().Add(time.Hour).Unix()
	assert.NoError(t, req.Validate())
}

func TestValidateEscrowParams(t *testing.T) {
	t.Run("valid escrow", func(t *testing.T) {
		req := validRequest()
		req.Escrow = &EscrowParams{
			DeliveryDeadline: time.Now().Add(48 * time.Hour),
			Resolution:       ResolutionMutual,
		}
		assert.NoError(t, req.Validate())
	})

	t.Run("delivery deadline in the past", func(t *testing.T) {
		req := validRequest()
		req.Escrow = &EscrowParams{
			DeliveryDeadline: time.Now().Add(-time.Hour),
		}
		assert.Error(t, req.Validate())
	})

	t.Run("arbiter resolution requires arbiter", func(t *testing.T) {
		req := validRequest()
		req.Escrow = &EscrowParams{
			DeliveryDeadline: time.Now().Add(48 * time.Hour),
			Resolution:       ResolutionArbiter,
		}
		assert.Error(t, req.Validate())

		req.Escrow.Arbiter = common.HexToAddress("0x00000000000000000000000000000000000000AB")
		assert.NoError(t, req.Validate())
	})
}

func TestEffectivePriority(t *testing.T) {
	req := validRequest()
	assert.Equal(t, PriorityStandard, req.EffectivePriority())

	req.Priority = PriorityInstant
	assert.Equal(t, PriorityInstant, req.EffectivePriority())
}

func TestFormatAmount(t *testing.T) {
	eth := NativeToken("ETH", 18, 1)
	assert.Equal(t, "1.5", eth.FormatAmount(big.NewInt(1500000000000000000)))

	usdc := ERC20Token(common.HexToAddress("0x00000000000000000000000000000000000000CC"), "USDC", 6, 1)
	assert.Equal(t, "12.345678", usdc.FormatAmount(big.NewInt(12345678)))
}
