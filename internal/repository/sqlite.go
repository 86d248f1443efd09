package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fathima-sithara/realtime-chat/internal/apperrors"
	"github.com/fathima-sithara/realtime-chat/internal/models"
)

// Timestamps are stored as unix milliseconds so ordering is exact.

type userRow struct {
	ID              string `gorm:"primaryKey"`
	DisplayName     string `gorm:"index:idx_users_display_name,priority:1"`
	Email           string `gorm:"index"`
	AvatarURL       string
	Provider        string `gorm:"index:idx_users_provider_subject,priority:1"`
	ProviderSubject string `gorm:"index:idx_users_provider_subject,priority:2"`
	PasswordHash    string
	CreatedMs       int64 `gorm:"column:created_at;not null;index:idx_users_display_name,priority:2"`
	UpdatedMs       int64 `gorm:"column:updated_at;not null"`
}

func (userRow) TableName() string { return "users" }

type friendRow struct {
	OwnerID     string `gorm:"primaryKey"`
	FriendID    string `gorm:"primaryKey"`
	DisplayName string
	CreatedMs   int64 `gorm:"column:created_at;not null"`
}

func (friendRow) TableName() string { return "friends" }

type conversationRow struct {
	Key          string `gorm:"column:conv_key;primaryKey"`
	Kind         string `gorm:"not null"`
	Name         string
	LastMessage  string
	LastSenderID string
	UpdatedMs    int64 `gorm:"column:updated_at;not null;index"`
}

func (conversationRow) TableName() string { return "conversations" }

type participantRow struct {
	ConversationKey string `gorm:"primaryKey"`
	UserID          string `gorm:"primaryKey;index"`
}

func (participantRow) TableName() string { return "conversation_participants" }

type messageRow struct {
	ID              string `gorm:"primaryKey"`
	ConversationKey string `gorm:"not null;index:idx_messages_conversation_created,priority:1"`
	SenderID        string `gorm:"not null"`
	Text            string `gorm:"not null"`
	CreatedMs       int64  `gorm:"column:created_at;not null;index:idx_messages_conversation_created,priority:2"`
}

func (messageRow) TableName() string { return "messages" }

func toMs(t time.Time) int64    { return t.UnixMilli() }
func fromMs(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (r userRow) model() *models.User {
	return &models.User{
		ID:              r.ID,
		DisplayName:     r.DisplayName,
		Email:           r.Email,
		AvatarURL:       r.AvatarURL,
		Provider:        r.Provider,
		ProviderSubject: r.ProviderSubject,
		PasswordHash:    r.PasswordHash,
		CreatedAt:       fromMs(r.CreatedMs),
		UpdatedAt:       fromMs(r.UpdatedMs),
	}
}

func (r messageRow) model() models.Message {
	return models.Message{
		ID:              r.ID,
		ConversationKey: r.ConversationKey,
		SenderID:        r.SenderID,
		Text:            r.Text,
		CreatedAt:       fromMs(r.CreatedMs),
	}
}

// OpenSQLite opens (creating if needed) the database file at path and migrates the schema.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers anyway; one connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&userRow{}, &friendRow{}, &conversationRow{}, &participantRow{}, &messageRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

func NewSQLiteStore(db *gorm.DB) *Store {
	return &Store{
		Users:         &sqliteUsers{db: db},
		Friends:       &sqliteFriends{db: db},
		Conversations: &sqliteConversations{db: db},
		ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		close: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}

func rowNotFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, apperrors.ErrNotFound)
	}
	return err
}

type sqliteUsers struct {
	db *gorm.DB
}

func (r *sqliteUsers) Create(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	ts := now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = ts
	}
	u.UpdatedAt = ts
	row := userRow{
		ID:              u.ID,
		DisplayName:     u.DisplayName,
		Email:           u.Email,
		AvatarURL:       u.AvatarURL,
		Provider:        u.Provider,
		ProviderSubject: u.ProviderSubject,
		PasswordHash:    u.PasswordHash,
		CreatedMs:       toMs(u.CreatedAt),
		UpdatedMs:       toMs(u.UpdatedAt),
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if u.Email != "" {
			var n int64
			if err := tx.Model(&userRow{}).Where("email = ?", u.Email).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("email %s: %w", u.Email, apperrors.ErrDuplicate)
			}
		}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("user %s: %w", u.ID, apperrors.ErrDuplicate)
			}
			return err
		}
		return nil
	})
}

func (r *sqliteUsers) first(ctx context.Context, what string, query string, args ...any) (*models.User, error) {
	var row userRow
	err := r.db.WithContext(ctx).Where(query, args...).Order("created_at ASC, id ASC").First(&row).Error
	if err != nil {
		return nil, rowNotFound(err, what)
	}
	return row.model(), nil
}

func (r *sqliteUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, "user "+id, "id = ?", id)
}

func (r *sqliteUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = normalizeEmail(email)
	return r.first(ctx, "email "+email, "email = ?", email)
}

func (r *sqliteUsers) GetByProviderSubject(ctx context.Context, provider, subject string) (*models.User, error) {
	return r.first(ctx, "subject "+subject, "provider = ? AND provider_subject = ?", provider, subject)
}

func (r *sqliteUsers) FindByDisplayName(ctx context.Context, name string) (*models.User, error) {
	return r.first(ctx, fmt.Sprintf("display name %q", name), "display_name = ?", name)
}

func (r *sqliteUsers) update(ctx context.Context, id string, fields map[string]any) (*models.User, error) {
	fields["updated_at"] = toMs(now())
	res := r.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

func (r *sqliteUsers) UpdateDisplayName(ctx context.Context, id, name string) (*models.User, error) {
	return r.update(ctx, id, map[string]any{"display_name": name})
}

func (r *sqliteUsers) UpdateAvatar(ctx context.Context, id, url string) (*models.User, error) {
	return r.update(ctx, id, map[string]any{"avatar_url": url})
}

type sqliteFriends struct {
	db *gorm.DB
}

func (r *sqliteFriends) Add(ctx context.Context, ref *models.FriendRef) error {
	ref.CreatedAt = now()
	row := friendRow{
		OwnerID:     ref.OwnerID,
		FriendID:    ref.FriendID,
		DisplayName: ref.DisplayName,
		CreatedMs:   toMs(ref.CreatedAt),
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("friend %s: %w", ref.FriendID, apperrors.ErrDuplicate)
	}
	return nil
}

func (r *sqliteFriends) Remove(ctx context.Context, ownerID, friendID string) error {
	res := r.db.WithContext(ctx).Where("owner_id = ? AND friend_id = ?", ownerID, friendID).Delete(&friendRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("friend %s: %w", friendID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *sqliteFriends) Get(ctx context.Context, ownerID, friendID string) (*models.FriendRef, error) {
	var row friendRow
	if err := r.db.WithContext(ctx).Where("owner_id = ? AND friend_id = ?", ownerID, friendID).First(&row).Error; err != nil {
		return nil, rowNotFound(err, "friend "+friendID)
	}
	return &models.FriendRef{OwnerID: row.OwnerID, FriendID: row.FriendID, DisplayName: row.DisplayName, CreatedAt: fromMs(row.CreatedMs)}, nil
}

func (r *sqliteFriends) List(ctx context.Context, ownerID string) ([]models.FriendRef, error) {
	var rows []friendRow
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("friend_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.FriendRef, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.FriendRef{OwnerID: row.OwnerID, FriendID: row.FriendID, DisplayName: row.DisplayName, CreatedAt: fromMs(row.CreatedMs)})
	}
	return out, nil
}

type sqliteConversations struct {
	db *gorm.DB
}

func (r *sqliteConversations) participants(tx *gorm.DB, key string) ([]string, error) {
	var rows []participantRow
	if err := tx.Where("conversation_key = ?", key).Order("rowid ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, p := range rows {
		out = append(out, p.UserID)
	}
	return out, nil
}

func (r *sqliteConversations) Upsert(ctx context.Context, c *models.Conversation) error {
	c.UpdatedAt = now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := conversationRow{
			Key:          c.Key,
			Kind:         string(c.Kind),
			Name:         c.Name,
			LastMessage:  c.LastMessage,
			LastSenderID: c.LastSenderID,
			UpdatedMs:    toMs(c.UpdatedAt),
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conv_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "last_message", "last_sender_id", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		for _, p := range c.Participants {
			if p == "" {
				continue
			}
			pr := participantRow{ConversationKey: c.Key, UserID: p}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&pr).Error; err != nil {
				return err
			}
		}
		all, err := r.participants(tx, c.Key)
		if err != nil {
			return err
		}
		c.Participants = all
		return nil
	})
}

func (r *sqliteConversations) load(tx *gorm.DB, row conversationRow) (models.Conversation, error) {
	parts, err := r.participants(tx, row.Key)
	if err != nil {
		return models.Conversation{}, err
	}
	return models.Conversation{
		Key:          row.Key,
		Kind:         models.ConversationKind(row.Kind),
		Participants: parts,
		Name:         row.Name,
		LastMessage:  row.LastMessage,
		LastSenderID: row.LastSenderID,
		UpdatedAt:    fromMs(row.UpdatedMs),
	}, nil
}

func (r *sqliteConversations) Get(ctx context.Context, key string) (*models.Conversation, error) {
	tx := r.db.WithContext(ctx)
	var row conversationRow
	if err := tx.Where("conv_key = ?", key).First(&row).Error; err != nil {
		return nil, rowNotFound(err, "conversation "+key)
	}
	c, err := r.load(tx, row)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *sqliteConversations) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	tx := r.db.WithContext(ctx)
	var rows []conversationRow
	err := tx.Where("conv_key IN (?)", tx.Model(&participantRow{}).Select("conversation_key").Where("user_id = ?", userID)).
		Order("updated_at DESC, conv_key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		c, err := r.load(tx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *sqliteConversations) AppendMessage(ctx context.Context, m *models.Message) error {
	m.ID = newMessageID()
	m.CreatedAt = now()
	row := messageRow{
		ID:              m.ID,
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderID,
		Text:            m.Text,
		CreatedMs:       toMs(m.CreatedAt),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *sqliteConversations) page(q *gorm.DB, limit int) ([]models.Message, error) {
	var rows []messageRow
	if err := q.Order("created_at DESC, id DESC").Limit(clampLimit(limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	reverseMessages(out)
	return out, nil
}

func (r *sqliteConversations) Recent(ctx context.Context, key string, limit int) ([]models.Message, error) {
	return r.page(r.db.WithContext(ctx).Where("conversation_key = ?", key), limit)
}

func (r *sqliteConversations) Before(ctx context.Context, key string, before Cursor, limit int) ([]models.Message, error) {
	q := r.db.WithContext(ctx).Where("conversation_key = ?", key)
	switch {
	case before.IsZero():
	case before.ID == "":
		q = q.Where("created_at < ?", toMs(before.At))
	default:
		ms := toMs(before.At)
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", ms, ms, before.ID)
	}
	return r.page(q, limit)
}
