package auth

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/multiguard/pkg/errors"
)

var (
	// ErrLinkInvalid reports a signed link whose signature does not verify.
	ErrLinkInvalid = apperrors.ErrInvalidSignature
	// ErrLinkExpired reports a correctly signed link past its expiry.
	ErrLinkExpired = apperrors.ErrLinkExpired
	// ErrResetTokenInvalid reports an unknown, mismatched or expired password reset token.
	ErrResetTokenInvalid = apperrors.ErrInvalidResetToken
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate")
}
