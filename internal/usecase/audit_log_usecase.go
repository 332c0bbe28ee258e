package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"smarthub/internal/domain/model"
	repo "smarthub/internal/repository"
)

type AuditLogUsecase struct {
	logs repo.AuditLogRepository
}

func NewAuditLogUsecase(logs repo.AuditLogRepository) *AuditLogUsecase {
	return &AuditLogUsecase{logs: logs}
}

// 管理画面からの絞り込み（空文字は条件なし）
type AuditLogQuery struct {
	ActorUserID  int64
	Action       string
	ResourceType string
	ResourceID   string
	From         *time.Time
	To           *time.Time
	Limit        int
	Offset       int
}

var auditActions = map[model.AuditAction]struct{}{
	model.AuditActionUpdateOrderStatus:   {},
	model.AuditActionReviewManualPayment: {},
	model.AuditActionForceLogout:         {},
}

var auditResources = map[model.AuditResourceType]struct{}{
	model.AuditResourceOrder:   {},
	model.AuditResourcePayment: {},
	model.AuditResourceUser:    {},
}

func (u *AuditLogUsecase) List(ctx context.Context, q AuditLogQuery) ([]model.AuditLog, error) {
	if q.Limit < 0 || q.Limit > 200 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if q.Offset < 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid offset")
	}
	if q.From != nil && q.To != nil && q.From.After(*q.To) {
		return nil, NewHTTPError(http.StatusBadRequest, "from must be before to")
	}

	f := repo.AuditLogFilter{CreatedFrom: q.From, CreatedTo: q.To, Limit: q.Limit, Offset: q.Offset}
	if q.ActorUserID > 0 {
		id := q.ActorUserID
		f.ActorUserID = &id
	}
	if v := strings.ToUpper(strings.TrimSpace(q.Action)); v != "" {
		a := model.AuditAction(v)
		if _, ok := auditActions[a]; !ok {
			return nil, NewHTTPError(http.StatusBadRequest, "invalid action")
		}
		f.Action = &a
	}
	if v := strings.ToLower(strings.TrimSpace(q.ResourceType)); v != "" {
		rt := model.AuditResourceType(v)
		if _, ok := auditResources[rt]; !ok {
			return nil, NewHTTPError(http.StatusBadRequest, "invalid resource_type")
		}
		f.ResourceType = &rt
	}
	if v := strings.TrimSpace(q.ResourceID); v != "" {
		f.ResourceID = &v
	}

	logs, err := u.logs.List(ctx, f)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return logs, nil
}
