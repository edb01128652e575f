package audit

import (
	"github.com/clinicore/shield/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideAuditLogger(db *gorm.DB, logger *logging.Service) *Logger {
	return NewLogger(db, logger)
}

var Options = fx.Options(
	fx.Provide(ProvideAuditLogger),
)
