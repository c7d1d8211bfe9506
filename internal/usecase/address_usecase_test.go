package usecase_test

import (
	"context"
	"testing"

	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAddress(street string) usecase.AddressInput {
	return usecase.AddressInput{
		Street: street, Number: "100", Neighborhood: "Centro",
		City: "Curitiba", State: "PR", ZipCode: "80000-000",
	}
}

func TestAddressUsecase_FirstAddressBecomesDefault(t *testing.T) {
	uc := usecase.NewAddressUsecase(newMemAddresses(), fixedClock{testNow})
	ctx := context.Background()

	first, err := uc.Create(ctx, buyerID, validAddress("Rua 1"))
	require.NoError(t, err)
	assert.True(t, first.IsDefault)

	second, err := uc.Create(ctx, buyerID, validAddress("Rua 2"))
	require.NoError(t, err)
	assert.False(t, second.IsDefault)

	require.NoError(t, uc.SetDefault(ctx, buyerID, second.ID))
	list, err := uc.List(ctx, buyerID)
	require.NoError(t, err)
	if assert.Len(t, list, 2) {
		assert.Equal(t, second.ID, list[0].ID)
		assert.True(t, list[0].IsDefault)
		assert.False(t, list[1].IsDefault)
	}
}

func TestAddressUsecase_DeleteDefault_PromotesNext(t *testing.T) {
	uc := usecase.NewAddressUsecase(newMemAddresses(), fixedClock{testNow})
	ctx := context.Background()

	first, err := uc.Create(ctx, buyerID, validAddress("Rua 1"))
	require.NoError(t, err)
	second, err := uc.Create(ctx, buyerID, validAddress("Rua 2"))
	require.NoError(t, err)

	require.NoError(t, uc.Delete(ctx, buyerID, first.ID))
	list, err := uc.List(ctx, buyerID)
	require.NoError(t, err)
	if assert.Len(t, list, 1) {
		assert.Equal(t, second.ID, list[0].ID)
		assert.True(t, list[0].IsDefault)
	}
}

func TestAddressUsecase_OtherUsersAddressIsNotFound(t *testing.T) {
	uc := usecase.NewAddressUsecase(newMemAddresses(), fixedClock{testNow})
	ctx := context.Background()

	a, err := uc.Create(ctx, buyerID, validAddress("Rua 1"))
	require.NoError(t, err)

	_, err = uc.Update(ctx, 2, a.ID, validAddress("Rua X"))
	assert.ErrorIs(t, err, usecase.ErrNotFound)
	assert.ErrorIs(t, uc.Delete(ctx, 2, a.ID), usecase.ErrNotFound)
	assert.ErrorIs(t, uc.SetDefault(ctx, 2, a.ID), usecase.ErrNotFound)
}

func TestAddressUsecase_Validation(t *testing.T) {
	uc := usecase.NewAddressUsecase(newMemAddresses(), fixedClock{testNow})

	in := validAddress("  ")
	_, err := uc.Create(context.Background(), buyerID, in)
	assert.ErrorIs(t, err, usecase.ErrValidation)

	_, err = uc.Create(context.Background(), 0, validAddress("Rua"))
	assert.ErrorIs(t, err, usecase.ErrUnauthorized)
}
