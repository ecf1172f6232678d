package models

import (
	"errors"
	"strings"
	"time"

	"github.com/mmdatafocus/pos_backend/apperr"
	"github.com/mmdatafocus/pos_backend/utils"
	"gorm.io/gorm"
)

const DefaultSupplierName = "Default Supplier"

type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Email     string    `gorm:"size:100" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewSupplier struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"omitempty,email,max=100"`
	Phone string `json:"phone"`
}

func (input *NewSupplier) validate() error {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.TrimSpace(input.Email)
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	if input.Phone != "" {
		phone, err := utils.NormalizePhoneNumber(input.Phone, utils.CountryCode)
		if err != nil {
			return apperr.NewValidation("phone", "%v", err)
		}
		input.Phone = phone
	}
	return nil
}

func CreateSupplier(tx *gorm.DB, input *NewSupplier) (*Supplier, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	supplier := Supplier{Name: input.Name, Email: input.Email, Phone: input.Phone}
	if err := tx.Create(&supplier).Error; err != nil {
		if utils.IsDuplicateKeyErr(err) {
			return nil, apperr.NewValidation("name", "supplier %q already exists", input.Name)
		}
		return nil, err
	}
	return &supplier, nil
}

// EnsureSupplier finds a supplier by case-insensitive name or creates it.
// A blank name resolves to DefaultSupplierName.
func EnsureSupplier(tx *gorm.DB, name string) (*Supplier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultSupplierName
	}
	var existing Supplier
	err := tx.Where("LOWER(name) = ?", strings.ToLower(name)).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return CreateSupplier(tx, &NewSupplier{Name: name})
}

func GetSupplier(tx *gorm.DB, id int) (*Supplier, error) {
	return utils.FetchModel[Supplier](tx, id)
}
