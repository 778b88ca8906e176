// Package connections provides database operations for tracker connections.
//
// Credentials are encrypted with AES-256-GCM before hitting the database;
// everything outside this package only ever sees the decrypted Credentials
// struct.
package connections

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jobins-devs/redmine-jira-integration/internal/crypto"
	"github.com/jobins-devs/redmine-jira-integration/internal/entities"
)

// Credentials is the decrypted credential bundle for one connection.
// Redmine uses APIKey; Jira uses Email plus APIToken.
type Credentials struct {
	APIKey   string `json:"api_key,omitempty"`
	Email    string `json:"email,omitempty"`
	APIToken string `json:"api_token,omitempty"`
}

// Repository handles connection persistence and credential encryption.
type Repository struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
}

func NewRepository(db *gorm.DB, encryptor *crypto.Encryptor) *Repository {
	return &Repository{db: db, encryptor: encryptor}
}

// Create stores a new connection with encrypted credentials.
func (r *Repository) Create(conn *entities.Connection, creds Credentials) error {
	encrypted, err := r.encryptCredentials(creds)
	if err != nil {
		return err
	}
	conn.Credentials = encrypted
	return r.db.Create(conn).Error
}

// Update saves connection fields; pass nil creds to leave credentials untouched.
func (r *Repository) Update(conn *entities.Connection, creds *Credentials) error {
	if creds != nil {
		encrypted, err := r.encryptCredentials(*creds)
		if err != nil {
			return err
		}
		conn.Credentials = encrypted
	}
	return r.db.Save(conn).Error
}

func (r *Repository) Delete(id uint) error {
	return r.db.Delete(&entities.Connection{}, id).Error
}

func (r *Repository) GetByID(id uint) (*entities.Connection, error) {
	var conn entities.Connection
	if err := r.db.First(&conn, id).Error; err != nil {
		return nil, err
	}
	return &conn, nil
}

func (r *Repository) GetAll() ([]entities.Connection, error) {
	var conns []entities.Connection
	err := r.db.Order("created_at desc").Find(&conns).Error
	return conns, err
}

// CountActive returns the number of active connections.
func (r *Repository) CountActive() (int64, error) {
	var count int64
	err := r.db.Model(&entities.Connection{}).Where("is_active = ?", true).Count(&count).Error
	return count, err
}

// DecryptCredentials returns the decrypted credential bundle for a connection.
func (r *Repository) DecryptCredentials(conn *entities.Connection) (Credentials, error) {
	var creds Credentials
	plaintext, err := r.encryptor.Decrypt(conn.Credentials)
	if err != nil {
		return creds, fmt.Errorf("decrypt credentials for connection %d: %w", conn.ID, err)
	}
	if err := json.Unmarshal([]byte(plaintext), &creds); err != nil {
		return creds, fmt.Errorf("parse credentials for connection %d: %w", conn.ID, err)
	}
	return creds, nil
}

// RecordTestResult persists the outcome of a connection test.
func (r *Repository) RecordTestResult(conn *entities.Connection, ok bool, errMsg string) error {
	now := time.Now()
	conn.LastTestedAt = &now
	if ok {
		conn.ConnectionStatus = entities.ConnectionStatusConnected
		conn.ConnectionError = ""
	} else {
		conn.ConnectionStatus = entities.ConnectionStatusFailed
		conn.ConnectionError = errMsg
	}
	return r.db.Save(conn).Error
}

func (r *Repository) encryptCredentials(creds Credentials) (string, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("marshal credentials: %w", err)
	}
	encrypted, err := r.encryptor.Encrypt(string(raw))
	if err != nil {
		return "", fmt.Errorf("encrypt credentials: %w", err)
	}
	return encrypted, nil
}
