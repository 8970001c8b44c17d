package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/angelmondragon/holopos/pkg/enums"
	pkgerrors "github.com/angelmondragon/holopos/pkg/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// ProductDTO mirrors the backend product resource. Fields the terminal does not
// price with (category, cost_price, display_price) are tolerated but ignored.
type ProductDTO struct {
	ID            int64               `json:"id" validate:"required,gt=0"`
	Name          string              `json:"name" validate:"required"`
	Price         decimal.NullDecimal `json:"price"`
	Stock         *int                `json:"stock" validate:"required,min=0"`
	Barcode       *string             `json:"barcode" validate:"omitempty,max=100"`
	IsBulkProduct bool                `json:"is_bulk_product"`
	BulkQuantity  *int                `json:"bulk_quantity"`
	BulkPrice     decimal.NullDecimal `json:"bulk_price"`
	UnitOfMeasure string              `json:"unit_of_measure"`
	Discounts     []BulkDiscountDTO   `json:"bulk_discounts" validate:"dive"`
}

// BulkDiscountDTO mirrors the backend bulk discount resource.
type BulkDiscountDTO struct {
	ID              int64               `json:"id" validate:"required,gt=0"`
	Name            string              `json:"name"`
	DiscountType    string              `json:"discount_type" validate:"required,oneof=percentage fixed bundle"`
	MinimumQuantity int                 `json:"minimum_quantity" validate:"required,min=1,max=10000"`
	DiscountValue   decimal.NullDecimal `json:"discount_value"`
	Product         int64               `json:"product"`
	IsActive        bool                `json:"is_active"`
	StartDate       time.Time           `json:"start_date"`
	EndDate         *time.Time          `json:"end_date"`
}

// CustomerDTO mirrors the backend customer resource.
type CustomerDTO struct {
	ID            int64  `json:"id" validate:"required,gt=0"`
	Name          string `json:"name" validate:"required"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	LoyaltyPoints int    `json:"loyalty_points" validate:"min=0"`
}

type paginatedProducts struct {
	Results []json.RawMessage `json:"results"`
}

// ParseProducts decodes a product listing, either a bare array or a paginated
// {"results": [...]} object, and normalizes every entry. The first malformed
// product aborts the whole parse.
func ParseProducts(data []byte) ([]Product, error) {
	raw, err := splitListing(data)
	if err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(raw))
	for i, entry := range raw {
		var dto ProductDTO
		if err := json.Unmarshal(entry, &dto); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed product").
				WithDetails(map[string]any{"index": i, "reason": err.Error()})
		}
		product, err := dto.Normalize()
		if err != nil {
			return nil, withIndex(err, i)
		}
		products = append(products, product)
	}
	return products, nil
}

// ParseCustomer decodes and normalizes a single customer resource.
func ParseCustomer(data []byte) (Customer, error) {
	var dto CustomerDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed customer")
	}
	if err := validate.Struct(dto); err != nil {
		return Customer{}, fieldError("customer", dto.ID, err)
	}
	return Customer{
		ID:            dto.ID,
		Name:          strings.TrimSpace(dto.Name),
		Phone:         strings.TrimSpace(dto.Phone),
		LoyaltyPoints: dto.LoyaltyPoints,
	}, nil
}

func splitListing(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "empty product listing")
	}

	switch trimmed[0] {
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed product listing")
		}
		return raw, nil
	case '{':
		var page paginatedProducts
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed product listing")
		}
		if page.Results == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product listing has no results")
		}
		return page.Results, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product listing must be an array or a paginated object")
	}
}

// Normalize validates the DTO and converts it into the domain product.
func (dto ProductDTO) Normalize() (Product, error) {
	if err := validate.Struct(dto); err != nil {
		return Product{}, fieldError("product", dto.ID, err)
	}
	if !dto.Price.Valid {
		return Product{}, invalidField("product", dto.ID, "price", "is required")
	}
	if dto.Price.Decimal.IsNegative() {
		return Product{}, invalidField("product", dto.ID, "price", "must not be negative")
	}
	if dto.BulkQuantity != nil && *dto.BulkQuantity < 1 {
		return Product{}, invalidField("product", dto.ID, "bulk_quantity", "must be at least 1")
	}

	product := Product{
		ID:        dto.ID,
		Name:      strings.TrimSpace(dto.Name),
		UnitPrice: dto.Price.Decimal,
		Stock:     *dto.Stock,
	}
	if dto.Barcode != nil {
		product.Barcode = strings.TrimSpace(*dto.Barcode)
	}

	if dto.BulkPrice.Valid && dto.BulkPrice.Decimal.IsNegative() {
		return Product{}, invalidField("product", dto.ID, "bulk_price", "must not be negative")
	}
	// stale pack fields on a non-bulk product, or a zero pack price, fall back to unit pricing
	if dto.IsBulkProduct && dto.BulkPrice.Valid && dto.BulkPrice.Decimal.IsPositive() {
		quantity := 1
		if dto.BulkQuantity != nil {
			quantity = *dto.BulkQuantity
		}
		product.Bulk = &BulkConfig{
			Quantity:      quantity,
			Price:         dto.BulkPrice.Decimal,
			UnitOfMeasure: strings.TrimSpace(dto.UnitOfMeasure),
		}
	}

	for _, d := range dto.Discounts {
		discount, err := d.normalize(dto.ID)
		if err != nil {
			return Product{}, err
		}
		product.Discounts = append(product.Discounts, discount)
	}
	return product, nil
}

func (dto BulkDiscountDTO) normalize(productID int64) (BulkDiscount, error) {
	if !dto.DiscountValue.Valid {
		return BulkDiscount{}, invalidField("bulk_discount", dto.ID, "discount_value", "is required")
	}
	value := dto.DiscountValue.Decimal
	if value.IsNegative() {
		return BulkDiscount{}, invalidField("bulk_discount", dto.ID, "discount_value", "must not be negative")
	}
	kind, err := enums.ParseDiscountType(dto.DiscountType)
	if err != nil {
		return BulkDiscount{}, invalidField("bulk_discount", dto.ID, "discount_type", err.Error())
	}
	if kind == enums.DiscountTypePercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		return BulkDiscount{}, invalidField("bulk_discount", dto.ID, "discount_value", "percentage must be at most 100")
	}
	if dto.StartDate.IsZero() {
		return BulkDiscount{}, invalidField("bulk_discount", dto.ID, "start_date", "is required")
	}
	if dto.Product != 0 && dto.Product != productID {
		return BulkDiscount{}, invalidField("bulk_discount", dto.ID, "product", fmt.Sprintf("belongs to product %d", dto.Product))
	}

	return BulkDiscount{
		ID:              dto.ID,
		Name:            strings.TrimSpace(dto.Name),
		ProductID:       productID,
		Type:            kind,
		MinimumQuantity: dto.MinimumQuantity,
		Value:           value,
		Active:          dto.IsActive,
		StartDate:       dto.StartDate,
		EndDate:         dto.EndDate,
	}, nil
}

func fieldError(resource string, id int64, err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		return invalidField(resource, id, field, validationMessage(fe))
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+resource)
}

func invalidField(resource string, id int64, field, reason string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid "+resource).WithDetails(map[string]any{
		"resource": resource,
		"id":       id,
		"field":    field,
		"reason":   reason,
	})
}

func withIndex(err error, index int) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		return err
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		details = map[string]any{}
	}
	details["index"] = index
	return typed.WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return "is invalid"
}
