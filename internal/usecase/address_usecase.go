package usecase

import (
	"context"
	"errors"
	"strings"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
)

type AddressInput struct {
	Street       string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	State        string
	ZipCode      string
	Phone        string
}

func (in AddressInput) trimmed() AddressInput {
	return AddressInput{
		Street:       strings.TrimSpace(in.Street),
		Number:       strings.TrimSpace(in.Number),
		Complement:   strings.TrimSpace(in.Complement),
		Neighborhood: strings.TrimSpace(in.Neighborhood),
		City:         strings.TrimSpace(in.City),
		State:        strings.TrimSpace(in.State),
		ZipCode:      strings.TrimSpace(in.ZipCode),
		Phone:        strings.TrimSpace(in.Phone),
	}
}

func (in AddressInput) validate() error {
	if in.Street == "" || in.Number == "" || in.Neighborhood == "" || in.City == "" || in.State == "" || in.ZipCode == "" {
		return validationError("street, number, neighborhood, city, state and zip_code are required")
	}
	return nil
}

type AddressUsecase struct {
	addresses repository.AddressRepository
	clock     Clock
}

func NewAddressUsecase(addresses repository.AddressRepository, clock Clock) *AddressUsecase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AddressUsecase{addresses: addresses, clock: clock}
}

func (u *AddressUsecase) List(ctx context.Context, userID int64) ([]model.Address, error) {
	if userID <= 0 {
		return nil, ErrUnauthorized
	}

	list, err := u.addresses.ListByUserID(ctx, userID)
	if err != nil {
		return nil, internal(err)
	}
	return list, nil
}

// 最初の住所は自動でデフォルトにする
func (u *AddressUsecase) Create(ctx context.Context, userID int64, in AddressInput) (model.Address, error) {
	if userID <= 0 {
		return model.Address{}, ErrUnauthorized
	}
	in = in.trimmed()
	if err := in.validate(); err != nil {
		return model.Address{}, err
	}

	existing, err := u.addresses.ListByUserID(ctx, userID)
	if err != nil {
		return model.Address{}, internal(err)
	}

	now := u.clock.Now()
	a := model.Address{
		UserID:       userID,
		Street:       in.Street,
		Number:       in.Number,
		Complement:   in.Complement,
		Neighborhood: in.Neighborhood,
		City:         in.City,
		State:        in.State,
		ZipCode:      in.ZipCode,
		Phone:        in.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := u.addresses.Create(ctx, a)
	if err != nil {
		return model.Address{}, internal(err)
	}

	if len(existing) == 0 {
		if err := u.addresses.SetDefault(ctx, userID, created.ID); err != nil {
			return model.Address{}, internal(err)
		}
		created.IsDefault = true
	}
	return created, nil
}

// 本人の住所だけ。他人のものは404
func (u *AddressUsecase) findOwned(ctx context.Context, userID, addressID int64) (model.Address, error) {
	if userID <= 0 {
		return model.Address{}, ErrUnauthorized
	}
	if addressID <= 0 {
		return model.Address{}, validationError("invalid id")
	}
	a, err := u.addresses.FindByID(ctx, addressID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && a.UserID != userID) {
		return model.Address{}, notFound("address")
	}
	if err != nil {
		return model.Address{}, internal(err)
	}
	return a, nil
}

func (u *AddressUsecase) Update(ctx context.Context, userID int64, addressID int64, in AddressInput) (model.Address, error) {
	a, err := u.findOwned(ctx, userID, addressID)
	if err != nil {
		return model.Address{}, err
	}
	in = in.trimmed()
	if err := in.validate(); err != nil {
		return model.Address{}, err
	}

	a.Street = in.Street
	a.Number = in.Number
	a.Complement = in.Complement
	a.Neighborhood = in.Neighborhood
	a.City = in.City
	a.State = in.State
	a.ZipCode = in.ZipCode
	a.Phone = in.Phone
	a.UpdatedAt = u.clock.Now()

	if err := u.addresses.Update(ctx, a); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Address{}, notFound("address")
		}
		return model.Address{}, internal(err)
	}
	return a, nil
}

// デフォルトを消したら残りの先頭を新しいデフォルトにする
func (u *AddressUsecase) Delete(ctx context.Context, userID int64, addressID int64) error {
	a, err := u.findOwned(ctx, userID, addressID)
	if err != nil {
		return err
	}

	if err := u.addresses.Delete(ctx, addressID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("address")
		}
		return internal(err)
	}

	if a.IsDefault {
		rest, err := u.addresses.ListByUserID(ctx, userID)
		if err != nil {
			return internal(err)
		}
		if len(rest) > 0 {
			if err := u.addresses.SetDefault(ctx, userID, rest[0].ID); err != nil {
				return internal(err)
			}
		}
	}
	return nil
}

func (u *AddressUsecase) SetDefault(ctx context.Context, userID int64, addressID int64) error {
	if _, err := u.findOwned(ctx, userID, addressID); err != nil {
		return err
	}

	//user内でdefaultは1つ
	if err := u.addresses.SetDefault(ctx, userID, addressID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound("address")
		}
		return internal(err)
	}
	return nil
}
