package repository

import (
	"time"

	"subtrack-backend/internal/subscription/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// gormVendorRepository implements VendorRepository using GORM
type gormVendorRepository struct {
	db *gorm.DB
}

func NewVendorRepository(db *gorm.DB) VendorRepository {
	return &gormVendorRepository{db: db}
}

func (r *gormVendorRepository) Create(vendor *domain.VendorMetadata) error {
	if vendor.ID == "" {
		vendor.ID = uuid.New().String()
	}
	now := time.Now()
	vendor.CreatedAt = now
	vendor.UpdatedAt = now
	return r.db.Create(vendor).Error
}

func (r *gormVendorRepository) Update(vendor *domain.VendorMetadata) error {
	vendor.UpdatedAt = time.Now()
	return r.db.Save(vendor).Error
}

func (r *gormVendorRepository) FindByID(id string) (*domain.VendorMetadata, error) {
	var vendor domain.VendorMetadata
	err := r.db.Where("id = ?", id).First(&vendor).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &vendor, nil
}

func (r *gormVendorRepository) FindByNormalizedName(name string) (*domain.VendorMetadata, error) {
	var vendor domain.VendorMetadata
	err := r.db.Where("normalized_name = ?", name).First(&vendor).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &vendor, nil
}

func (r *gormVendorRepository) All() ([]*domain.VendorMetadata, error) {
	var vendors []*domain.VendorMetadata
	err := r.db.Order("normalized_name ASC").Find(&vendors).Error
	return vendors, err
}
