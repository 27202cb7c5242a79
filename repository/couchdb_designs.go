package repository

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zentity-id/go-zentity-server/global"
)

func createDesignAndView(databaseName string, designName string, viewName string, mapFunction string, reduceFunction string) error {
	client := resty.New().SetTimeout(time.Second*10).SetBasicAuth(global.Conf.CouchDB.Username, global.Conf.CouchDB.Password)

	scheme := global.Conf.CouchDB.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := ""
	if global.Conf.CouchDB.Port != 0 {
		host = fmt.Sprintf("%s://%s:%d", scheme, global.Conf.CouchDB.Host, global.Conf.CouchDB.Port)
	} else {
		host = fmt.Sprintf("%s://%s", scheme, global.Conf.CouchDB.Host)
	}
	url := fmt.Sprintf("%s/%s/_design/%s/_view/%s", host, databaseName, designName, viewName)
	existingResponse, eErr := client.R().Head(url)
	if eErr != nil {
		return eErr
	}
	if existingResponse.IsError() && existingResponse.StatusCode() != 404 {
		return fmt.Errorf("failed to create design %s with view %s: %v", designName, viewName, existingResponse.Error())
	}
	if existingResponse.StatusCode() == 200 {
		return nil // view already exists
	}

	ddoc := map[string]interface{}{
		"language": "javascript",
		"views": map[string]interface{}{
			viewName: map[string]string{
				"map": mapFunction,
			},
		},
	}
	if reduceFunction != "" {
		ddoc["views"].(map[string]interface{})[viewName].(map[string]string)["reduce"] = reduceFunction
	}
	url = fmt.Sprintf("%s/%s/_design/%s", host, databaseName, designName)
	resp, err := client.R().SetBody(ddoc).Put(url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("failed to store design %s: %v", designName, resp.Error())
	}
	return nil
}

// CreateDesign_ExpiredRecordsByExpiry indexes documents by their expiresAt so
// the recovery sweep can find challenges past their deadline.
func CreateDesign_ExpiredRecordsByExpiry(databaseName string, designName string, viewName string) error {
	mapFunction := `function(doc)
						{
							if (doc.expiresAt && doc.status === "pending") {
								emit(doc.expiresAt, doc._rev);
							}
						}`
	return createDesignAndView(databaseName, designName, viewName, mapFunction, "")
}
