package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"boardflow/internal/models"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// BoardRepository answers the board-scoped lookups automation actions and
// the event detector need. Column lists are cached per board.
type BoardRepository interface {
	Board(ctx context.Context, boardID uint) (*models.Board, error)
	BoardColumns(ctx context.Context, boardID uint) ([]models.Column, error)
	FindGroup(ctx context.Context, boardID, groupID uint) (*models.Group, error)
	FindBoardUser(ctx context.Context, boardID, userID uint) (*models.User, error)
	FirstColumnOfType(ctx context.Context, boardID uint, columnType string) (*models.Column, error)
	OrganizationOwner(ctx context.Context, boardID uint) (*models.User, error)
	UserIDByUsername(ctx context.Context, boardID uint, username string) (uint, error)
	CreateColumn(ctx context.Context, column *models.Column) error
	InvalidateColumns(boardID uint)
}

type boardRepository struct {
	db      *gorm.DB
	columns *cache.Cache
}

// NewBoardRepository creates a gorm backed BoardRepository. columnTTL <= 0
// disables caching.
func NewBoardRepository(db *gorm.DB, columnTTL time.Duration) BoardRepository {
	r := &boardRepository{db: db}
	if columnTTL > 0 {
		r.columns = cache.New(columnTTL, 2*columnTTL)
	}
	return r
}

// Board returns ErrBoardNotFound if the board does not exist.
func (r *boardRepository) Board(ctx context.Context, boardID uint) (*models.Board, error) {
	var board models.Board
	if err := r.db.WithContext(ctx).First(&board, boardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBoardNotFound
		}
		return nil, fmt.Errorf("failed to get board %d: %w", boardID, err)
	}
	return &board, nil
}

// BoardColumns returns the board's columns ordered by position.
func (r *boardRepository) BoardColumns(ctx context.Context, boardID uint) ([]models.Column, error) {
	key := strconv.FormatUint(uint64(boardID), 10)
	if r.columns != nil {
		if cached, ok := r.columns.Get(key); ok {
			return cached.([]models.Column), nil
		}
	}
	var cols []models.Column
	if err := r.db.WithContext(ctx).Where("board_id = ?", boardID).
		Order("position ASC, id ASC").Find(&cols).Error; err != nil {
		return nil, fmt.Errorf("failed to list columns of board %d: %w", boardID, err)
	}
	if r.columns != nil {
		r.columns.Set(key, cols, cache.DefaultExpiration)
	}
	return cols, nil
}

// CreateColumn appends a column to its board and drops the board's cached
// column list so the detector sees it on the next save.
func (r *boardRepository) CreateColumn(ctx context.Context, column *models.Column) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Column{}).Where("board_id = ?", column.BoardID).Count(&count).Error; err != nil {
			return err
		}
		column.Position = int(count)
		return tx.Create(column).Error
	})
	if err != nil {
		return fmt.Errorf("failed to create column on board %d: %w", column.BoardID, err)
	}
	r.InvalidateColumns(column.BoardID)
	return nil
}

// InvalidateColumns drops the cached column list of a board.
func (r *boardRepository) InvalidateColumns(boardID uint) {
	if r.columns != nil {
		r.columns.Delete(strconv.FormatUint(uint64(boardID), 10))
	}
}

func (r *boardRepository) FindGroup(ctx context.Context, boardID, groupID uint) (*models.Group, error) {
	var group models.Group
	err := r.db.WithContext(ctx).Where("id = ? AND board_id = ?", groupID, boardID).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("group %d on board %d: %w", groupID, boardID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get group %d: %w", groupID, err)
	}
	return &group, nil
}

// FindBoardUser returns the user only if they belong to the board's
// organization.
func (r *boardRepository) FindBoardUser(ctx context.Context, boardID, userID uint) (*models.User, error) {
	board, err := r.Board(ctx, boardID)
	if err != nil {
		return nil, err
	}
	var user models.User
	err = r.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", userID, board.OrganizationID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d on board %d: %w", userID, boardID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return &user, nil
}

func (r *boardRepository) FirstColumnOfType(ctx context.Context, boardID uint, columnType string) (*models.Column, error) {
	cols, err := r.BoardColumns(ctx, boardID)
	if err != nil {
		return nil, err
	}
	for i := range cols {
		if cols[i].Type == columnType {
			col := cols[i]
			return &col, nil
		}
	}
	return nil, fmt.Errorf("%s column on board %d: %w", columnType, boardID, ErrNotFound)
}

func (r *boardRepository) OrganizationOwner(ctx context.Context, boardID uint) (*models.User, error) {
	board, err := r.Board(ctx, boardID)
	if err != nil {
		return nil, err
	}
	var org models.Organization
	if err := r.db.WithContext(ctx).First(&org, board.OrganizationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("organization of board %d: %w", boardID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get organization %d: %w", board.OrganizationID, err)
	}
	if org.OwnerID == 0 {
		return nil, fmt.Errorf("owner of organization %d: %w", org.ID, ErrNotFound)
	}
	var owner models.User
	if err := r.db.WithContext(ctx).First(&owner, org.OwnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("owner of organization %d: %w", org.ID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user %d: %w", org.OwnerID, err)
	}
	return &owner, nil
}

// UserIDByUsername resolves a person-column value within the board's
// organization.
func (r *boardRepository) UserIDByUsername(ctx context.Context, boardID uint, username string) (uint, error) {
	board, err := r.Board(ctx, boardID)
	if err != nil {
		return 0, err
	}
	var user models.User
	err = r.db.WithContext(ctx).
		Where("username = ? AND organization_id = ?", username, board.OrganizationID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to resolve user %q: %w", username, err)
	}
	return user.ID, nil
}
