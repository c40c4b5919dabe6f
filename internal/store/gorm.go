package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
)

var _ Store = (*Gorm)(nil)

type roomModel struct {
	ID                       string `gorm:"primaryKey"`
	HostID                   string
	Name                     string
	Visibility               string
	Status                   string
	TimeLimitSeconds         int
	QuestionCount            int
	QuestionSetRef           string
	CurrentQuestionIndex     int
	CurrentQuestionStartedAt *time.Time
	ClosedAt                 *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
	Slots                    []slotModel `gorm:"foreignKey:RoomID;references:ID"`
}

func (roomModel) TableName() string { return "rooms" }

type slotModel struct {
	RoomID     string `gorm:"primaryKey"`
	SlotIndex  int    `gorm:"primaryKey"`
	Type       string
	OccupantID *string
	BotLabel   *string
}

func (slotModel) TableName() string { return "room_slots" }

// Gorm stores rooms in postgres. The schema comes from the goose migrations,
// not from AutoMigrate.
type Gorm struct {
	db *gorm.DB
}

func OpenGorm(dsn string) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &Gorm{db: db}, nil
}

func NewGorm(db *gorm.DB) *Gorm { return &Gorm{db: db} }

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *Gorm) CreateRoom(ctx context.Context, room engine.Room, slots engine.Slots) error {
	m := toRoomModel(room)
	for _, s := range slots {
		m.Slots = append(m.Slots, toSlotModel(room.ID, s))
	}
	if err := g.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("create room %s: %w", room.ID, err)
	}
	return nil
}

func (g *Gorm) GetRoom(ctx context.Context, id string) (engine.Room, engine.Slots, error) {
	var m roomModel
	err := g.db.WithContext(ctx).
		Preload("Slots", func(db *gorm.DB) *gorm.DB { return db.Order("slot_index") }).
		First(&m, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Room{}, engine.Slots{}, fmt.Errorf("%w: room %s", engine.ErrNotFound, id)
	}
	if err != nil {
		return engine.Room{}, engine.Slots{}, fmt.Errorf("get room %s: %w", id, err)
	}

	slots := engine.NewSlots()
	for _, s := range m.Slots {
		if s.SlotIndex < 0 || s.SlotIndex >= engine.SeatCount {
			continue
		}
		slots[s.SlotIndex] = fromSlotModel(s)
	}
	return fromRoomModel(m), slots, nil
}

func (g *Gorm) ListRooms(ctx context.Context) ([]Listing, error) {
	var rooms []roomModel
	err := g.db.WithContext(ctx).
		Preload("Slots").
		Where("closed_at IS NULL").
		Order("created_at").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	out := make([]Listing, 0, len(rooms))
	for _, m := range rooms {
		slots := engine.NewSlots()
		for _, s := range m.Slots {
			if s.SlotIndex >= 0 && s.SlotIndex < engine.SeatCount {
				slots[s.SlotIndex] = fromSlotModel(s)
			}
		}
		out = append(out, Listing{Room: fromRoomModel(m), Summary: slots.Summarize()})
	}
	return out, nil
}

func (g *Gorm) UpdateSlot(ctx context.Context, roomID string, slot engine.Slot) error {
	m := toSlotModel(roomID, slot)
	res := g.db.WithContext(ctx).
		Model(&slotModel{}).
		Where("room_id = ? AND slot_index = ?", roomID, slot.Index).
		Updates(map[string]any{
			"type":        m.Type,
			"occupant_id": m.OccupantID,
			"bot_label":   m.BotLabel,
		})
	return rowsOrNotFound(res, "update slot")
}

// CloseRoom stamps closed_at and deletes the slots in one transaction.
func (g *Gorm) CloseRoom(ctx context.Context, id string) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&roomModel{}).Where("id = ?", id).Updates(map[string]any{
			"closed_at": &now,
			"status":    string(engine.StatusFinished),
		})
		if err := rowsOrNotFound(res, "close room"); err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", id).Delete(&slotModel{}).Error; err != nil {
			return fmt.Errorf("delete slots: %w", err)
		}
		return nil
	})
}

func (g *Gorm) SetRoomStatus(ctx context.Context, id string, status engine.RoomStatus) error {
	res := g.db.WithContext(ctx).Model(&roomModel{}).Where("id = ?", id).Update("status", string(status))
	return rowsOrNotFound(res, "set room status")
}

func (g *Gorm) SetCurrentQuestion(ctx context.Context, id string, index int, startedAt time.Time) error {
	res := g.db.WithContext(ctx).Model(&roomModel{}).Where("id = ?", id).Updates(map[string]any{
		"current_question_index":      index,
		"current_question_started_at": nullTime(startedAt),
	})
	return rowsOrNotFound(res, "set current question")
}

func rowsOrNotFound(res *gorm.DB, op string) error {
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", engine.ErrNotFound, op)
	}
	return nil
}

func toRoomModel(r engine.Room) roomModel {
	return roomModel{
		ID:                       r.ID,
		HostID:                   r.HostID,
		Name:                     r.Name,
		Visibility:               string(r.Visibility),
		Status:                   string(r.Status),
		TimeLimitSeconds:         r.TimeLimitSeconds,
		QuestionCount:            r.QuestionCount,
		QuestionSetRef:           r.QuestionSetRef,
		CurrentQuestionIndex:     r.CurrentQuestionIndex,
		CurrentQuestionStartedAt: nullTime(r.CurrentQuestionStartedAt),
	}
}

func fromRoomModel(m roomModel) engine.Room {
	r := engine.Room{
		ID:                   m.ID,
		HostID:               m.HostID,
		Name:                 m.Name,
		Visibility:           engine.Visibility(m.Visibility),
		Status:               engine.RoomStatus(m.Status),
		TimeLimitSeconds:     m.TimeLimitSeconds,
		QuestionCount:        m.QuestionCount,
		QuestionSetRef:       m.QuestionSetRef,
		CurrentQuestionIndex: m.CurrentQuestionIndex,
		Closed:               m.ClosedAt != nil,
	}
	if m.CurrentQuestionStartedAt != nil {
		r.CurrentQuestionStartedAt = *m.CurrentQuestionStartedAt
	}
	return r
}

func toSlotModel(roomID string, s engine.Slot) slotModel {
	return slotModel{
		RoomID:     roomID,
		SlotIndex:  s.Index,
		Type:       string(s.Type),
		OccupantID: nullString(s.OccupantID),
		BotLabel:   nullString(s.BotLabel),
	}
}

func fromSlotModel(m slotModel) engine.Slot {
	s := engine.Slot{Index: m.SlotIndex, Type: engine.SlotType(m.Type)}
	if m.OccupantID != nil {
		s.OccupantID = *m.OccupantID
	}
	if m.BotLabel != nil {
		s.BotLabel = *m.BotLabel
	}
	return s
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
