package persistence

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-publisher/domain/model"
)

func TestPublishJobRepository_CreateAndGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPublishJobRepository(db)

	job := &model.PublishJob{
		OwnerID: "o1",
		Content: model.ContentItem{Caption: "New arrivals", Media: []model.MediaRef{{URL: "https://cdn/x.jpg", Kind: model.MediaImage}}},
		Targets: []model.Network{model.NetworkFacebook, model.NetworkTwitter},
		Status:  model.JobDraft,
	}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO publish_jobs`)).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), job))
	assert.NotEmpty(t, job.ID)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM publish_jobs WHERE id=$1 AND owner_id=$2`)).
		WithArgs(job.ID, "o1").
		WillReturnRows(sqlmock.NewRows(strings.Split(strings.ReplaceAll(publishJobColumns, " ", ""), ",")).
			AddRow(job.ID, "o1",
				[]byte(`{"caption":"New arrivals","media":[{"url":"https://cdn/x.jpg","kind":"image"}]}`),
				[]byte(`["facebook","twitter"]`), nil, "partially-failed",
				[]byte(`{"facebook":{"network":"facebook","state":"succeeded","remote_post_id":"p1"},"twitter":{"network":"twitter","state":"failed","error_class":"transient","error_reason":"rate_limited"}}`),
				nil, now, now, now))

	got, err := repo.Get(context.Background(), "o1", job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobPartiallyFailed, got.Status)
	assert.Equal(t, "New arrivals", got.Content.Caption)
	assert.Equal(t, []model.Network{model.NetworkFacebook, model.NetworkTwitter}, got.Targets)
	assert.Equal(t, "p1", got.Results[model.NetworkFacebook].RemotePostID)
	assert.True(t, got.Results[model.NetworkTwitter].Transient())
	require.NotNil(t, got.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishJobRepository_ListWithFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPublishJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM publish_jobs WHERE owner_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 20`)).
		WithArgs("o1", "failed").
		WillReturnRows(sqlmock.NewRows(strings.Split(strings.ReplaceAll(publishJobColumns, " ", ""), ",")))

	list, err := repo.List(context.Background(), "o1", model.JobFilter{Status: model.JobFailed, Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, list)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishJobRepository_Save_Missing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewPublishJobRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE publish_jobs SET status=$1`)).WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.Save(context.Background(), &model.PublishJob{ID: "nope", Status: model.JobFailed})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
