package archive

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.PutObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestS3ArchiveStore(t *testing.T) {
	t.Parallel()

	client := new(mockS3)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return aws.ToString(in.Bucket) == "civic-docs" &&
			aws.ToString(in.Key) == "documents/1700000000000_budget.pdf" &&
			aws.ToString(in.ContentType) == "application/pdf" &&
			string(body) == "%PDF-1.4"
	})).Return(&s3.PutObjectOutput{}, nil)

	archive := NewS3ArchiveWithClient(client, "civic-docs", "/documents/")
	locator, err := archive.Store(context.Background(), "1700000000000_budget.pdf", []byte("%PDF-1.4"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "s3://civic-docs/documents/1700000000000_budget.pdf", locator)
	client.AssertExpectations(t)
}

func TestS3ArchiveErrors(t *testing.T) {
	t.Parallel()

	client := new(mockS3)
	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("access denied"))

	_, err := NewS3ArchiveWithClient(client, "civic-docs", "").Store(context.Background(), "a.pdf", nil, "application/pdf")
	assert.ErrorContains(t, err, "access denied")

	_, err = NewS3ArchiveWithClient(client, "", "").Store(context.Background(), "a.pdf", nil, "application/pdf")
	assert.Error(t, err)
}
