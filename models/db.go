package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrNotFound = gorm.ErrRecordNotFound
	// ErrIdentityImmutable 已注册的角色身份不允许覆盖
	ErrIdentityImmutable = errors.New("character identity already registered")
	// ErrTaskTerminal 终态任务不允许再更新
	ErrTaskTerminal = errors.New("task already in terminal state")
	// ErrIdentityNotFailed 只有 failed 的身份可以重置
	ErrIdentityNotFailed = errors.New("character identity is not in failed state")
)

// OpenDB 建立 MySQL 连接 (Native SQL + GORM) 并自动迁移表结构
func OpenDB(dsn string) (*gorm.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn: db,
	}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("gorm init: %w", err)
	}

	if err := gormDB.AutoMigrate(&Project{}, &Scene{}, &Shot{}, &Character{}, &GenerationTask{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	log.Info().Msg("database connected")
	return gormDB, nil
}

// Store 基于 GORM 的持久化实现
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetScene(ctx context.Context, id string) (*Scene, error) {
	var scene Scene
	if err := s.db.WithContext(ctx).First(&scene, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &scene, nil
}

func (s *Store) ListScenes(ctx context.Context, projectID string) ([]Scene, error) {
	var scenes []Scene
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("`order` ASC").Find(&scenes).Error
	return scenes, err
}

func (s *Store) UpdateSceneStatus(ctx context.Context, id, status, message string) error {
	return s.db.WithContext(ctx).Model(&Scene{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"message":    message,
		"updated_at": time.Now(),
	}).Error
}

// ListShots 按 order 升序返回场景下的镜头
func (s *Store) ListShots(ctx context.Context, sceneID string) ([]Shot, error) {
	var shots []Shot
	err := s.db.WithContext(ctx).Where("scene_id = ?", sceneID).Order("`order` ASC").Find(&shots).Error
	return shots, err
}

func (s *Store) ListCharacters(ctx context.Context, projectID string) ([]Character, error) {
	var chars []Character
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Find(&chars).Error
	return chars, err
}

func (s *Store) GetCharacter(ctx context.Context, id string) (*Character, error) {
	var c Character
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveCharacterIdentity 只更新身份相关列；已注册的身份不会被覆盖
func (s *Store) SaveCharacterIdentity(ctx context.Context, id string, identity CharacterIdentity) error {
	res := s.db.WithContext(ctx).Model(&Character{}).
		Where("id = ? AND identity_status <> ?", id, IdentityStatusRegistered).
		Updates(map[string]interface{}{
			"identity_code":                identity.Code,
			"identity_reference_video_key": identity.ReferenceVideoKey,
			"identity_reference_video_url": identity.ReferenceVideoUrl,
			"identity_status":              identity.Status,
			"identity_error":               identity.Error,
			"updated_at":                   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetCharacter(ctx, id); err != nil {
			return err
		}
		return ErrIdentityImmutable
	}
	return nil
}

// ResetCharacterIdentity 人工修复（如更换参考图）后把 failed 重置为 pending
func (s *Store) ResetCharacterIdentity(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&Character{}).
		Where("id = ? AND identity_status = ?", id, IdentityStatusFailed).
		Updates(map[string]interface{}{
			"identity_status":              IdentityStatusPending,
			"identity_error":               "",
			"identity_reference_video_key": "",
			"identity_reference_video_url": "",
			"updated_at":                   time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetCharacter(ctx, id); err != nil {
			return err
		}
		return ErrIdentityNotFailed
	}
	return nil
}

func (s *Store) CreateTask(ctx context.Context, t *GenerationTask) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	return s.db.WithContext(ctx).Create(t).Error
}

// UpdateTask 部分字段更新；终态任务保持不变
func (s *Store) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	updates := u.columns()
	updates["updated_at"] = time.Now()
	res := s.db.WithContext(ctx).Model(&GenerationTask{}).
		Where("id = ? AND status NOT IN ?", id, []string{TaskStatusCompleted, TaskStatusFailed, TaskStatusTimeout}).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetTask(ctx, id); err != nil {
			return err
		}
		return ErrTaskTerminal
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*GenerationTask, error) {
	var t GenerationTask
	if err := s.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTasksByScene(ctx context.Context, sceneID string) ([]GenerationTask, error) {
	var tasks []GenerationTask
	err := s.db.WithContext(ctx).Where("scene_id = ?", sceneID).Order("created_at ASC").Find(&tasks).Error
	return tasks, err
}
