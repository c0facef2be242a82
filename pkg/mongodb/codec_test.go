package mongodb

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type priced struct {
	Qty  decimal.Decimal  `bson:"qty"`
	Cost *decimal.Decimal `bson:"cost,omitempty"`
}

func TestDecimalCodec(t *testing.T) {
	cost := decimal.RequireFromString("12.3456")
	in := priced{Qty: decimal.RequireFromString("7.25"), Cost: &cost}

	raw, err := bson.MarshalWithRegistry(Registry(), in)
	require.NoError(t, err)

	var out priced
	require.NoError(t, bson.UnmarshalWithRegistry(Registry(), raw, &out))
	assert.True(t, in.Qty.Equal(out.Qty))
	require.NotNil(t, out.Cost)
	assert.True(t, cost.Equal(*out.Cost))
}

func TestDecimalCodec_DecodesNumbers(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"qty": int32(4)})
	require.NoError(t, err)

	var out priced
	require.NoError(t, bson.UnmarshalWithRegistry(Registry(), raw, &out))
	assert.True(t, decimal.NewFromInt(4).Equal(out.Qty))
}
