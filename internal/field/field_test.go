package field

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddSubNeg(t *testing.T) {
	m := Safe256Bits()
	a := FromUint64(m, 7)
	b := FromUint64(m, 35)

	sum := a.Add(b)
	require.Equal(t, int64(42), sum.Int64())

	require.True(t, a.Add(a.Neg()).IsZero())
}

func TestMul(t *testing.T) {
	m := Safe256Bits()
	a := FromUint64(m, 6)
	b := FromUint64(m, 7)
	require.Equal(t, int64(42), a.Mul(b).Int64())
}

func TestInv(t *testing.T) {
	m := Safe256Bits()
	a := FromUint64(m, 42)
	inv, err := a.Inv()
	require.NoError(t, err)
	require.True(t, a.Mul(inv).Equal(One(m)))

	_, err = Zero(m).Inv()
	require.ErrorIs(t, err, ErrNoInverse)
}

func TestEqualConstantTime(t *testing.T) {
	m := Safe256Bits()
	a := FromUint64(m, 100)
	b := FromUint64(m, 100)
	c := FromUint64(m, 101)
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}

func TestBit(t *testing.T) {
	m := Safe256Bits()
	a := FromUint64(m, 0b1011)
	require.Equal(t, uint(1), a.Bit(0))
	require.Equal(t, uint(1), a.Bit(1))
	require.Equal(t, uint(0), a.Bit(2))
	require.Equal(t, uint(1), a.Bit(3))
}
