package user

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryGetProfile(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name", "age", "role", "location", "avatar", "bio", "offers", "needs", "is_premium"}).
		AddRow("u1", "Kenji Tanaka", 72, "Boomer", "Kyoto, Japan", "https://picsum.photos/200", "Retired", `["Language","Cooking"]`, `["Tech Support"]`, true)
	mock.ExpectQuery("SELECT id, name, age, role, location, avatar, bio, offers, needs, is_premium FROM profiles WHERE id = \\$1").
		WithArgs("u1").
		WillReturnRows(rows)

	p, err := NewRepository(db).Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Boomer, p.Role)
	assert.Equal(t, []Skill{SkillLanguage, SkillCooking}, p.Offers)
	assert.True(t, p.IsPremium)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateUserTaken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO users").
		WithArgs("id-1", "maria", "hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = NewRepository(db).CreateUser(context.Background(), &Account{ID: "id-1", Username: "maria", Password: "hash"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}
