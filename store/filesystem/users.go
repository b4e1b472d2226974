// notes/store/filesystem/users.go
package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/ViniZap4/lumi-notes/domain"
)

const usersDir = ".users"

func (s *Store) listUsers() ([]domain.User, error) {
	dir := filepath.Join(s.root, usersDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var users []domain.User
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		var u domain.User
		if err := yaml.Unmarshal(data, &u); err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("skipping invalid user record")
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	users, err := s.listUsers()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	var out []domain.User
	for _, u := range users {
		if u.Email == email {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) InsertUser(ctx context.Context, u *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.listUsers()
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, existing := range users {
		if existing.Email == u.Email {
			return domain.ErrAlreadyExists
		}
	}

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	data, err := yaml.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	path := filepath.Join(s.root, usersDir, escapeName(u.ID)+".yaml")
	return atomic.WriteFile(path, bytes.NewReader(data))
}
