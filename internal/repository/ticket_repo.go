package repository

import (
	"context"

	"anhelo/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TicketRepository persists the current WSAA ticket as a single row per service.
type TicketRepository interface {
	FindByService(ctx context.Context, service string) (*model.AuthTicket, error)
	Save(ctx context.Context, t *model.AuthTicket) error
	Delete(ctx context.Context, service string) error
}

type ticketRepo struct{ db *gorm.DB }

func NewTicketRepository(db *gorm.DB) TicketRepository {
	return &ticketRepo{db: db}
}

func (r *ticketRepo) FindByService(ctx context.Context, service string) (*model.AuthTicket, error) {
	var t model.AuthTicket
	err := r.db.WithContext(ctx).Where("service = ?", service).First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Save overwrites the slot for t.Service.
func (r *ticketRepo) Save(ctx context.Context, t *model.AuthTicket) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "service"}}, UpdateAll: true}).
		Create(t).Error
}

func (r *ticketRepo) Delete(ctx context.Context, service string) error {
	return r.db.WithContext(ctx).Where("service = ?", service).Delete(&model.AuthTicket{}).Error
}
