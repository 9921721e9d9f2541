package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

func (d *Database) AutoMigrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id VARCHAR(64) PRIMARY KEY,
            username VARCHAR(50) UNIQUE NOT NULL,
            password VARCHAR(255) NOT NULL,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,

		`CREATE TABLE IF NOT EXISTS profiles (
            id VARCHAR(64) PRIMARY KEY,
            name VARCHAR(100) NOT NULL,
            age INT NOT NULL DEFAULT 0,
            role VARCHAR(20) NOT NULL,
            location VARCHAR(100) NOT NULL DEFAULT '',
            avatar TEXT NOT NULL DEFAULT '',
            bio TEXT NOT NULL DEFAULT '',
            offers TEXT NOT NULL DEFAULT '[]',
            needs TEXT NOT NULL DEFAULT '[]',
            is_premium BOOLEAN NOT NULL DEFAULT FALSE
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            id VARCHAR(32) PRIMARY KEY,
            owner_id VARCHAR(64) NOT NULL,
            peer_id VARCHAR(64) NOT NULL,
            payload JSONB NOT NULL,
            created_at TIMESTAMP NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (owner_id, peer_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS call_logs (
            id VARCHAR(64) PRIMARY KEY,
            owner_id VARCHAR(64) NOT NULL DEFAULT '',
            participant_id VARCHAR(64) NOT NULL,
            created_at TIMESTAMP NOT NULL,
            duration VARCHAR(16) NOT NULL,
            medium VARCHAR(10) CHECK (medium IN ('audio', 'video')),
            outcome VARCHAR(10) CHECK (outcome IN ('completed', 'missed', 'declined')),
            direction VARCHAR(10) CHECK (direction IN ('incoming', 'outgoing')),
            recording_url TEXT NOT NULL DEFAULT ''
        )`,

		`CREATE TABLE IF NOT EXISTS items (
            id VARCHAR(64) PRIMARY KEY,
            seller_id VARCHAR(64) NOT NULL,
            title VARCHAR(200) NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            price NUMERIC(10, 2) NOT NULL CHECK (price >= 0),
            images TEXT NOT NULL DEFAULT '[]',
            video_url TEXT NOT NULL DEFAULT '',
            category VARCHAR(20) NOT NULL,
            condition VARCHAR(20) NOT NULL,
            likes INT NOT NULL DEFAULT 0 CHECK (likes >= 0),
            is_sold BOOLEAN NOT NULL DEFAULT FALSE,
            listed_at TIMESTAMP NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS purchases (
            id VARCHAR(64) PRIMARY KEY,
            buyer_id VARCHAR(64) NOT NULL DEFAULT '',
            item_id VARCHAR(64) NOT NULL,
            seller_id VARCHAR(64) NOT NULL,
            title VARCHAR(200) NOT NULL,
            price NUMERIC(10, 2) NOT NULL,
            image TEXT NOT NULL DEFAULT '',
            purchase_date TIMESTAMP NOT NULL,
            payment_method VARCHAR(64) NOT NULL DEFAULT ''
        )`,

		`CREATE TABLE IF NOT EXISTS reviews (
            id VARCHAR(64) PRIMARY KEY,
            seller_id VARCHAR(64) NOT NULL,
            author_id VARCHAR(64) NOT NULL,
            item_id VARCHAR(64) NOT NULL,
            rating INT NOT NULL CHECK (rating BETWEEN 1 AND 5),
            comment TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMP NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS requests (
            id VARCHAR(64) PRIMARY KEY,
            user_id VARCHAR(64) NOT NULL,
            category VARCHAR(40) NOT NULL,
            title VARCHAR(200) NOT NULL,
            description TEXT NOT NULL,
            exchange_offer TEXT NOT NULL DEFAULT '',
            posted_at TIMESTAMP NOT NULL
        )`,
	}

	for _, query := range queries {
		_, err := d.Conn.Exec(query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
