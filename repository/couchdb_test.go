package repository

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/zentity-id/go-zentity-server/types"
)

var url = "http://localhost:5689"

func InitMockDatabase(dbName string) (Repository, error) {
	httpmock.Activate()

	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s", url, "_all_dbs"),
		httpmock.NewStringResponder(200, `[]`))

	mr, mErr := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	if mErr != nil {
		return nil, mErr
	}
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s", url, dbName), mr)
	httpmock.RegisterResponder("HEAD", fmt.Sprintf("%s/%s", url, dbName), mr)
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s", url, dbName), mr)

	db, err := NewCouchDBRepository(url, dbName, "test", "test", true)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func deactivateMock() {
	httpmock.DeactivateAndReset()
}

func TestInitNewDatabase(t *testing.T) {
	db, err := InitMockDatabase(PasskeyCredential)
	defer deactivateMock()
	if err != nil {
		t.Fatal(err)
	}
	if db == nil {
		t.Fatal("db is nil")
	}
}

func TestSaveAndGetByID(t *testing.T) {
	db, _ := InitMockDatabase(PasskeyCredential)
	defer deactivateMock()

	mk, _ := httpmock.NewJsonResponder(201, types.OK{IsOK: true})
	httpmock.RegisterResponder("PUT", fmt.Sprintf("%s/%s/%s", url, PasskeyCredential, "cred-1"), mk)

	mk, _ = httpmock.NewJsonResponder(200, types.PasskeyCredentialDB{
		CredentialID: "cred-1",
		UserID:       "user-1",
		Counter:      7,
	})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", url, PasskeyCredential, "cred-1"), mk)

	sErr := db.Save(context.Background(), "cred-1", &types.PasskeyCredentialDB{
		CredentialID: "cred-1",
		UserID:       "user-1",
		Counter:      7,
	})
	if sErr != nil {
		t.Fatal(sErr)
	}

	res, err := db.GetByID(context.Background(), "cred-1")
	if err != nil {
		t.Fatal(err)
	}
	var cred types.PasskeyCredentialDB
	mapErr := MapToObject(res, &cred)
	if mapErr != nil {
		t.Fatal(mapErr)
	}
	assert.Equal(t, "cred-1", cred.CredentialID)
	assert.Equal(t, "user-1", cred.UserID)
	assert.Equal(t, uint32(7), cred.Counter)
}

func TestGetByIDNotFound(t *testing.T) {
	db, _ := InitMockDatabase(Secret)
	defer deactivateMock()

	mk, _ := httpmock.NewJsonResponder(404, types.CouchDBError{Error: "not_found", Reason: "missing"})
	httpmock.RegisterResponder("GET", fmt.Sprintf("%s/%s/%s", url, Secret, "missing"), mk)

	_, err := db.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeleteFetchesRevision(t *testing.T) {
	db, _ := InitMockDatabase(WrappedDek)
	defer deactivateMock()

	docURL := fmt.Sprintf("%s/%s/%s", url, WrappedDek, "sec-1:cred-1")
	mk, _ := httpmock.NewJsonResponder(200, map[string]interface{}{
		"_id":  "sec-1:cred-1",
		"_rev": "3-abc",
	})
	httpmock.RegisterResponder("GET", docURL, mk)

	httpmock.RegisterResponder("DELETE", docURL,
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "3-abc", req.URL.Query().Get("rev"))
			return httpmock.NewJsonResponse(200, types.OK{IsOK: true})
		})

	err := db.Delete(context.Background(), "sec-1:cred-1")
	assert.NoError(t, err)
}
