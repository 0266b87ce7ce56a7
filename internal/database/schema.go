package database

import (
    "context"
    "database/sql"
    "fmt"
)

// EnsureSchema creates the application tables when they do not exist yet.
// Statements are idempotent so the server can run them on every start.
// The CHECK on rides keeps available_seats inside [0, total_seats] even if
// a future code path slips past the conditional updates in the repository
// layer; MySQL 8.0.16+ enforces CHECK constraints.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
    stmts := []string{
        `CREATE TABLE IF NOT EXISTS users (
            id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
            email         VARCHAR(255) NOT NULL UNIQUE,
            password_hash VARCHAR(255) NOT NULL,
            full_name     VARCHAR(255) NOT NULL DEFAULT '',
            phone         VARCHAR(20)  NOT NULL DEFAULT '',
            role          ENUM('DRIVER','PASSENGER') NOT NULL,
            created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
        ) ENGINE=InnoDB`,

        `CREATE TABLE IF NOT EXISTS refresh_tokens (
            id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
            user_id    BIGINT UNSIGNED NOT NULL,
            token_hash CHAR(64) NOT NULL UNIQUE,
            expires_at DATETIME NOT NULL,
            revoked_at DATETIME NULL,
            CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users(id)
        ) ENGINE=InnoDB`,

        `CREATE TABLE IF NOT EXISTS rides (
            id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
            driver_id       BIGINT UNSIGNED NOT NULL,
            origin_name     VARCHAR(255) NOT NULL,
            origin_lat      DOUBLE NOT NULL DEFAULT 0,
            origin_lng      DOUBLE NOT NULL DEFAULT 0,
            dest_name       VARCHAR(255) NOT NULL,
            dest_lat        DOUBLE NOT NULL DEFAULT 0,
            dest_lng        DOUBLE NOT NULL DEFAULT 0,
            departure_at    DATETIME NOT NULL,
            price_per_seat  INT UNSIGNED NOT NULL,
            total_seats     TINYINT UNSIGNED NOT NULL,
            available_seats TINYINT UNSIGNED NOT NULL,
            status          ENUM('ACTIVE','FULL','COMPLETED','CANCELLED') NOT NULL DEFAULT 'ACTIVE',
            created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
            CONSTRAINT fk_ride_driver FOREIGN KEY (driver_id) REFERENCES users(id),
            CONSTRAINT chk_price CHECK (price_per_seat > 0),
            CONSTRAINT chk_total_seats CHECK (total_seats BETWEEN 1 AND 8),
            CONSTRAINT chk_seats CHECK (available_seats <= total_seats)
        ) ENGINE=InnoDB`,

        `CREATE TABLE IF NOT EXISTS bookings (
            id           BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
            ride_id      BIGINT UNSIGNED NOT NULL,
            passenger_id BIGINT UNSIGNED NOT NULL,
            seats_booked TINYINT UNSIGNED NOT NULL,
            booking_fee  INT UNSIGNED NOT NULL,
            status       ENUM('PENDING_PAYMENT','CONFIRMED','CANCELLED_BY_PASSENGER','CANCELLED_BY_DRIVER','COMPLETED') NOT NULL DEFAULT 'PENDING_PAYMENT',
            created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
            CONSTRAINT fk_booking_ride FOREIGN KEY (ride_id) REFERENCES rides(id),
            CONSTRAINT fk_booking_passenger FOREIGN KEY (passenger_id) REFERENCES users(id),
            CONSTRAINT chk_seats_booked CHECK (seats_booked BETWEEN 1 AND 4),
            INDEX idx_booking_ride_passenger (ride_id, passenger_id)
        ) ENGINE=InnoDB`,

        `CREATE TABLE IF NOT EXISTS payments (
            id                     BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
            booking_id             BIGINT UNSIGNED NOT NULL,
            payer_id               BIGINT UNSIGNED NOT NULL,
            amount                 INT UNSIGNED NOT NULL,
            payment_type           ENUM('BOOKING_FEE','REFUND_TO_PASSENGER','REFUND_TO_DRIVER') NOT NULL,
            status                 ENUM('PENDING','PROCESSING','COMPLETED','FAILED','REFUNDED') NOT NULL DEFAULT 'PENDING',
            gateway_reference      VARCHAR(64) NOT NULL UNIQUE,
            gateway_transaction_id VARCHAR(128) NULL,
            payer_contact          VARCHAR(20) NOT NULL,
            error_message          VARCHAR(512) NULL,
            retry_count            INT UNSIGNED NOT NULL DEFAULT 0,
            created_at             TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at             TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
            CONSTRAINT fk_payment_booking FOREIGN KEY (booking_id) REFERENCES bookings(id),
            CONSTRAINT fk_payment_payer FOREIGN KEY (payer_id) REFERENCES users(id),
            CONSTRAINT chk_amount CHECK (amount > 0)
        ) ENGINE=InnoDB`,
    }
    for _, s := range stmts {
        if _, err := db.ExecContext(ctx, s); err != nil {
            return fmt.Errorf("ensure schema: %w", err)
        }
    }
    return nil
}
