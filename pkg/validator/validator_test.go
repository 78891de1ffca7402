package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scenario struct {
	Name         string `json:"name" validate:"required"`
	Amount       int64  `json:"amount" validate:"gtefield=RevenueShare"`
	RevenueShare int64  `json:"revenue_share" validate:"gte=0"`
}

type wrapper struct {
	Items []scenario `json:"items" validate:"dive"`
}

func TestValidate(t *testing.T) {
	v := New()

	t.Run("valid when amount equals revenue share", func(t *testing.T) {
		errs, err := v.Struct(scenario{Name: "standard", Amount: 500, RevenueShare: 500}, "")
		require.NoError(t, err)
		assert.Empty(t, errs)
	})

	t.Run("reports json field names", func(t *testing.T) {
		errs, err := v.Struct(scenario{Amount: 100, RevenueShare: 200}, "")
		require.NoError(t, err)
		errs.Sort()
		require.Len(t, errs, 2)
		assert.Equal(t, "amount", errs[0].Field)
		assert.Equal(t, "must be greater than or equal to revenue_share", errs[0].Message)
		assert.Equal(t, "name", errs[1].Field)
		assert.Equal(t, "required", errs[1].Tag)
	})

	t.Run("prefixes nested fields", func(t *testing.T) {
		errs, err := v.Struct(wrapper{Items: []scenario{{Name: "ok"}, {}}}, "billing_scenarios[5:9]")
		require.NoError(t, err)
		require.Len(t, errs, 1)
		assert.Equal(t, "billing_scenarios[5:9].items[1].name", errs[0].Field)
	})
}
