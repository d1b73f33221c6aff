package utils

import (
	"context"

	"bitbucket.org/hisdatafocus/lmis_backend/appctx"
)

var (
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyUserName      = appctx.ContextKeyUserName
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyFacilityId    = appctx.ContextKeyFacilityId
	ContextKeyFacilityCode  = appctx.ContextKeyFacilityCode
)

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetFacilityIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyFacilityId)
}

func GetFacilityCodeFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyFacilityCode)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

// WithActingFacility derives a child context scoped to one facility. Callers
// must not store the returned context beyond the unit of work it was made for.
func WithActingFacility(ctx context.Context, facilityId int, facilityCode string) context.Context {
	ctx = appctx.Set(ctx, ContextKeyFacilityId, facilityId)
	return appctx.Set(ctx, ContextKeyFacilityCode, facilityCode)
}
