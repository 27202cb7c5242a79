package main

import (
	"errors"
	"strconv"

	"github.com/zentity-id/go-zentity-server/global"
	"github.com/zentity-id/go-zentity-server/passkey"
	"github.com/zentity-id/go-zentity-server/repository"
	"github.com/zentity-id/go-zentity-server/services"
	"github.com/zentity-id/go-zentity-server/types"
)

// Configure DB Repositories and create DB Selector
func ConfigDBSelector() repository.DBSelector {
	// configure Repository (couchDB)
	repoUrl := global.Conf.CouchDB.Scheme + "://" + global.Conf.CouchDB.Host + ":" + strconv.Itoa(global.Conf.CouchDB.Port)
	userRepo, userRepoErr := repository.NewCouchDBRepository(repoUrl, repository.User, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	credentialRepo, credentialRepoErr := repository.NewCouchDBRepository(repoUrl, repository.PasskeyCredential, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	secretRepo, secretRepoErr := repository.NewCouchDBRepository(repoUrl, repository.Secret, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	wrappedDekRepo, wrappedDekRepoErr := repository.NewCouchDBRepository(repoUrl, repository.WrappedDek, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	recoveryRepo, recoveryRepoErr := repository.NewCouchDBRepository(repoUrl, repository.RecoveryChallenge, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)
	approvalRepo, approvalRepoErr := repository.NewCouchDBRepository(repoUrl, repository.GuardianApproval, global.Conf.CouchDB.Username, global.Conf.CouchDB.Password, false)

	repoErr := errors.Join(userRepoErr, credentialRepoErr, secretRepoErr, wrappedDekRepoErr, recoveryRepoErr, approvalRepoErr)
	if repoErr != nil {
		global.Logger.Log("error", "Failed to create repositories", "error", repoErr.Error())
		panic(repoErr)
	}

	// REPOSITORY definitions
	dbSelector := repository.NewCouchDBSelector()
	dbSelector.AddDB(userRepo)
	dbSelector.AddDB(credentialRepo)
	dbSelector.AddDB(secretRepo)
	dbSelector.AddDB(wrappedDekRepo)
	dbSelector.AddDB(recoveryRepo)
	dbSelector.AddDB(approvalRepo)

	return dbSelector
}

// ConfigDBIndexing creates design documents and schedules the cron sweeps.
func ConfigDBIndexing(dbSelector *repository.CouchDBSelector, challengeStore *passkey.ChallengeStore, environment *types.Environment) {
	// CREATE REQUIRED SERVICES
	userService := services.NewUserService(dbSelector)
	credentialService := services.NewCredentialService(dbSelector)
	recoveryService := services.NewRecoveryService(dbSelector, userService, credentialService, environment)

	// Create DESIGN DOCUMENTS
	// design document returning pending recovery challenges by expiry time
	dErr := repository.CreateDesign_ExpiredRecordsByExpiry(repository.RecoveryChallenge, "recovery", "expired")
	if dErr != nil {
		panic(dErr)
	}

	// cron jobs
	// drop expired passkey challenges every minute, stale recoveries every 5
	environment.Cron.AddFunc("@every 1m", challengeStore.RemoveExpired)
	environment.Cron.AddFunc("@every 5m", recoveryService.RemoveExpiredRecoveries)
	environment.Cron.Start()
	go recoveryService.RemoveExpiredRecoveries() // run once on startup
}
