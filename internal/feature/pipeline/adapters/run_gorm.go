package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stock_pipeline/internal/feature/pipeline/domain"
	"stock_pipeline/internal/feature/pipeline/domain/entity"
	"stock_pipeline/internal/feature/pipeline/usecase"

	"gorm.io/gorm"
)

type runGorm struct {
	db *gorm.DB
}

var _ usecase.RunRepository = (*runGorm)(nil)

// NewRunRepository は gorm を使った実行記録リポジトリを返します。
func NewRunRepository(db *gorm.DB) *runGorm {
	return &runGorm{db: db}
}

// RunModel is the persisted form of entity.Run.
type RunModel struct {
	ID      string    `gorm:"primaryKey;size:64"`
	Symbol  string    `gorm:"size:16;not null;uniqueIndex:run_sym_date_id,priority:1;index:run_sym_started,priority:1"`
	RunDate time.Time `gorm:"not null;uniqueIndex:run_sym_date_id,priority:2"`

	State       string `gorm:"size:16;not null"`
	FailedStage string `gorm:"size:32"`
	ErrorKind   string `gorm:"size:32"`
	Error       string `gorm:"type:text"`
	RowsLoaded  int64  `gorm:"not null;default:0"`

	StartedAt  time.Time `gorm:"not null;index:run_sym_started,priority:2"`
	FinishedAt *time.Time
	UpdatedAt  time.Time
}

func (RunModel) TableName() string {
	return "pipeline_runs"
}

func toRunModel(e *entity.Run) RunModel {
	return RunModel{
		ID:          e.ID,
		Symbol:      e.Symbol,
		RunDate:     e.RunDate,
		State:       string(e.State),
		FailedStage: string(e.FailedStage),
		ErrorKind:   e.ErrorKind,
		Error:       e.Error,
		RowsLoaded:  e.RowsLoaded,
		StartedAt:   e.StartedAt,
		FinishedAt:  e.FinishedAt,
	}
}

func (m RunModel) toEntity() entity.Run {
	var finished *time.Time
	if m.FinishedAt != nil {
		t := m.FinishedAt.UTC()
		finished = &t
	}
	return entity.Run{
		ID:          m.ID,
		Symbol:      m.Symbol,
		RunDate:     m.RunDate.UTC(),
		State:       entity.State(m.State),
		FailedStage: entity.StageName(m.FailedStage),
		ErrorKind:   m.ErrorKind,
		Error:       m.Error,
		RowsLoaded:  m.RowsLoaded,
		StartedAt:   m.StartedAt.UTC(),
		FinishedAt:  finished,
	}
}

func (r *runGorm) Create(ctx context.Context, run *entity.Run) error {
	m := toRunModel(run)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *runGorm) UpdateState(ctx context.Context, id string, state entity.State) error {
	res := r.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", id).Update("state", string(state))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	return nil
}

// Finish は終了状態・失敗情報・ロード件数をまとめて書き込みます。
func (r *runGorm) Finish(ctx context.Context, run *entity.Run) error {
	res := r.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", run.ID).Updates(map[string]any{
		"state":        string(run.State),
		"failed_stage": string(run.FailedStage),
		"error_kind":   run.ErrorKind,
		"error":        run.Error,
		"rows_loaded":  run.RowsLoaded,
		"finished_at":  run.FinishedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRunNotFound, run.ID)
	}
	return nil
}

func (r *runGorm) FindByID(ctx context.Context, id string) (*entity.Run, error) {
	var m RunModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	e := m.toEntity()
	return &e, nil
}

// ListBySymbol は新しい順に最大 limit 件を返します。symbol が空なら全銘柄が対象です。
func (r *runGorm) ListBySymbol(ctx context.Context, symbol string, limit int) ([]entity.Run, error) {
	var rows []RunModel
	q := r.db.WithContext(ctx).Order("started_at DESC").Order("id DESC")
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]entity.Run, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toEntity())
	}
	return out, nil
}
