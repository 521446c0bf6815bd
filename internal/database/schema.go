package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS stores (
		id          VARCHAR(64)  NOT NULL PRIMARY KEY,
		name        VARCHAR(255) NOT NULL,
		address     VARCHAR(512) NULL,
		is_active   TINYINT(1)   NOT NULL DEFAULT 1,
		created_at  DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		updated_at  DATETIME(3)  NOT NULL DEFAULT CURRENT_TIMESTAMP(3) ON UPDATE CURRENT_TIMESTAMP(3)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS users (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(32)  NOT NULL,
		store_id      VARCHAR(64)  NULL,
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		created_at    DATETIME(3)  NOT NULL,
		updated_at    DATETIME(3)  NOT NULL,
		UNIQUE KEY uq_users_email (email),
		CONSTRAINT fk_users_store FOREIGN KEY (store_id) REFERENCES stores(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS customers (
		id            CHAR(36)     NOT NULL PRIMARY KEY,
		name          VARCHAR(255) NOT NULL,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		phone         VARCHAR(32)  NULL,
		is_active     TINYINT(1)   NOT NULL DEFAULT 1,
		created_at    DATETIME(3)  NOT NULL,
		updated_at    DATETIME(3)  NOT NULL,
		UNIQUE KEY uq_customers_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS promotions (
		id             VARCHAR(64)  NOT NULL PRIMARY KEY,
		store_id       VARCHAR(64)  NOT NULL,
		title          VARCHAR(255) NOT NULL,
		description    TEXT         NULL,
		price_cents    BIGINT       NOT NULL DEFAULT 0,
		discount_cents BIGINT       NOT NULL DEFAULT 0,
		starts_at      DATETIME(3)  NULL,
		ends_at        DATETIME(3)  NULL,
		is_active      TINYINT(1)   NOT NULL DEFAULT 1,
		created_at     DATETIME(3)  NOT NULL,
		updated_at     DATETIME(3)  NOT NULL,
		KEY idx_promotions_store (store_id),
		CONSTRAINT fk_promotions_store FOREIGN KEY (store_id) REFERENCES stores(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS favorites (
		id           CHAR(36)    NOT NULL PRIMARY KEY,
		customer_id  CHAR(36)    NOT NULL,
		promotion_id VARCHAR(64) NOT NULL,
		created_at   DATETIME(3) NOT NULL,
		UNIQUE KEY uq_favorites_customer_promotion (customer_id, promotion_id),
		KEY idx_favorites_promotion (promotion_id),
		CONSTRAINT fk_favorites_customer FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE,
		CONSTRAINT fk_favorites_promotion FOREIGN KEY (promotion_id) REFERENCES promotions(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id             CHAR(36)     NOT NULL PRIMARY KEY,
		principal_id   CHAR(36)     NOT NULL,
		principal_kind VARCHAR(16)  NOT NULL,
		token_hash     CHAR(64)     NOT NULL,
		expires_at     DATETIME(3)  NOT NULL,
		revoked        TINYINT(1)   NOT NULL DEFAULT 0,
		device_info    VARCHAR(512) NULL,
		created_at     DATETIME(3)  NOT NULL,
		updated_at     DATETIME(3)  NOT NULL,
		UNIQUE KEY uq_refresh_tokens_hash (token_hash),
		KEY idx_refresh_tokens_principal (principal_id, principal_kind),
		KEY idx_refresh_tokens_expires (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS device_tokens (
		id          CHAR(36)     NOT NULL PRIMARY KEY,
		customer_id CHAR(36)     NOT NULL,
		token       VARCHAR(255) NOT NULL,
		platform    VARCHAR(16)  NOT NULL,
		created_at  DATETIME(3)  NOT NULL,
		updated_at  DATETIME(3)  NOT NULL,
		UNIQUE KEY uq_device_tokens_customer_token (customer_id, token),
		KEY idx_device_tokens_token (token),
		KEY idx_device_tokens_updated (updated_at),
		CONSTRAINT fk_device_tokens_customer FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates any missing table. Existing tables are left as is.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
