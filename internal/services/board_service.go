package services

import (
	"context"
	"fmt"
	"strings"

	"boardflow/internal/models"
	"boardflow/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ColumnCreateRequest 新增看板列请求
type ColumnCreateRequest struct {
	Title    string                 `json:"title" binding:"required"`
	Type     string                 `json:"type"`
	Settings map[string]interface{} `json:"settings"`
}

var columnTypes = map[string]bool{
	models.ColumnTypeText:     true,
	models.ColumnTypeStatus:   true,
	models.ColumnTypePerson:   true,
	models.ColumnTypePriority: true,
	models.ColumnTypeDate:     true,
	models.ColumnTypeNumber:   true,
}

// BoardService manages board structure. Column writes go through the board
// repository so the detector's column cache stays current.
type BoardService struct {
	boards repository.BoardRepository
	logger *logrus.Logger
}

func NewBoardService(boards repository.BoardRepository, logger *logrus.Logger) *BoardService {
	if logger == nil {
		logger = logrus.New()
	}
	return &BoardService{boards: boards, logger: logger}
}

// AddColumn appends a column to the board. An empty type means text.
func (s *BoardService) AddColumn(ctx context.Context, boardID uint, req *ColumnCreateRequest) (*models.Column, error) {
	if req == nil || strings.TrimSpace(req.Title) == "" {
		return nil, fmt.Errorf("%w: title required", ErrInvalidItem)
	}
	colType := strings.ToLower(strings.TrimSpace(req.Type))
	if colType == "" {
		colType = models.ColumnTypeText
	}
	if !columnTypes[colType] {
		return nil, fmt.Errorf("%w: unknown column type %q", ErrInvalidItem, req.Type)
	}
	if _, err := s.boards.Board(ctx, boardID); err != nil {
		return nil, err
	}

	column := &models.Column{
		BoardID:  boardID,
		Title:    strings.TrimSpace(req.Title),
		Type:     colType,
		Settings: datatypes.JSONMap(req.Settings),
	}
	if err := s.boards.CreateColumn(ctx, column); err != nil {
		return nil, err
	}
	s.logger.Infof("column '%s' (%s) added to board %d", column.Title, column.Type, boardID)
	return column, nil
}
