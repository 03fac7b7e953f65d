package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestQuoteTextFallsBackToOriginal(t *testing.T) {
	q := Quote{OriginalText: "original"}
	assert.Equal(t, "original", q.Text())

	empty := ""
	q.CleanedText = &empty
	assert.Equal(t, "original", q.Text())

	cleaned := "cleaned"
	q.CleanedText = &cleaned
	assert.Equal(t, "cleaned", q.Text())
}

func TestBeforeCreateAssignsIDs(t *testing.T) {
	q := &Quote{}
	require.NoError(t, q.BeforeCreate(nil))
	assert.Len(t, q.ID, 36)
	assert.Equal(t, QuoteStatusPending, q.Status)

	c := &Conversation{}
	require.NoError(t, c.BeforeCreate(nil))
	assert.NotEmpty(t, c.ID)
	assert.NotNil(t, c.Messages)

	d := &Document{ID: "fixed"}
	require.NoError(t, d.BeforeCreate(nil))
	assert.Equal(t, "fixed", d.ID)
	assert.False(t, d.UploadedAt.IsZero())
}

func TestNewVector(t *testing.T) {
	assert.Nil(t, NewVector(nil))

	v := NewVector([]float32{0.5, 1})
	require.NotNil(t, v)
	assert.Equal(t, []float32{0.5, 1}, v.Slice())
}

func TestVectorColumnType(t *testing.T) {
	pg := &gorm.DB{Config: &gorm.Config{Dialector: postgres.Dialector{Config: &postgres.Config{}}}}
	my := &gorm.DB{Config: &gorm.Config{Dialector: mysql.Dialector{Config: &mysql.Config{}}}}
	t.Cleanup(func() { UseVectorColumns(false) })

	UseVectorColumns(false)
	assert.Equal(t, "text", Vector{}.GormDBDataType(pg, nil))

	UseVectorColumns(true)
	assert.Equal(t, "vector", Vector{}.GormDBDataType(pg, nil))
	assert.Equal(t, "text", Vector{}.GormDBDataType(my, nil))
}
