package mongodb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestBuildDocuments_KeepsColumnOrderAndNulls(t *testing.T) {
	docs := buildDocuments(
		[]string{"customer_id", "customer_zip_code_prefix", "customer_city"},
		[][]any{
			{"c1", int64(1151), "sao paulo"},
			{"c2", nil, "campinas"},
		},
	)
	require.Len(t, docs, 2)

	first, ok := docs[0].(bson.D)
	require.True(t, ok)
	assert.Equal(t, bson.D{
		{Key: "customer_id", Value: "c1"},
		{Key: "customer_zip_code_prefix", Value: int64(1151)},
		{Key: "customer_city", Value: "sao paulo"},
	}, first)

	second := docs[1].(bson.D)
	require.Len(t, second, 3)
	assert.Nil(t, second[1].Value)
}

func TestDatabaseFromURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{uri: "mongodb://localhost:27017/olist_ecommerce", want: "olist_ecommerce"},
		{uri: "mongodb+srv://u:p@cluster0.example.net/olist?retryWrites=true", want: "olist"},
		{uri: "mongodb://localhost:27017", wantErr: true},
		{uri: "postgres://localhost/olist", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := databaseFromURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
