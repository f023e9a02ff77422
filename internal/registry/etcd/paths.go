package etcd

import (
	"path"

	"github.com/Sh00ty/mec-orchestrator/internal/models"
)

/*
mec-registry/platforms/P1(%s)                                   platform telemetry
mec-registry/contexts/ctx-1(%s)                                 app context record
mec-registry/placements/P1(%s)/my_app_1(%s)/ctx-1(%s)           copy of record, written in the same txn
mec-registry/locks/deployment/P1(%s)/my_app_1(%s)               pair locks
mec-orchestrator/optimizer/leader                               optimizer election
*/

const (
	registryFolder   = "/mec-registry"
	platformsFolder  = registryFolder + "/platforms"
	contextsFolder   = registryFolder + "/contexts"
	placementsFolder = registryFolder + "/placements"
	locksFolder      = registryFolder + "/locks"

	OptimizerLeadershipKey = "/mec-orchestrator/optimizer/leader"
)

// mec-registry/platforms/
func PlatformsPrefix() string {
	return platformsFolder + "/"
}

// mec-registry/platforms/P1(%s)
func platformKey(id models.PlatformID) string {
	return path.Join(platformsFolder, string(id))
}

// mec-registry/contexts/
func contextsPrefix() string {
	return contextsFolder + "/"
}

// mec-registry/contexts/ctx-1(%s)
func contextKey(id models.ContextID) string {
	return path.Join(contextsFolder, string(id))
}

// mec-registry/placements/P1(%s)/
func platformPlacementsPrefix(platformID models.PlatformID) string {
	return path.Join(placementsFolder, string(platformID)) + "/"
}

// mec-registry/placements/P1(%s)/my_app_1(%s)/
func pairPlacementsPrefix(platformID models.PlatformID, appDID models.AppDID) string {
	return path.Join(placementsFolder, string(platformID), string(appDID)) + "/"
}

// mec-registry/placements/P1(%s)/my_app_1(%s)/ctx-1(%s)
func placementKey(appCtx models.AppContext) string {
	return path.Join(
		placementsFolder,
		string(appCtx.PlatformID),
		string(appCtx.AppDID),
		string(appCtx.ID),
	)
}

// mec-registry/locks/deployment/P1(%s)/my_app_1(%s)
func lockKey(key string) string {
	return path.Join(locksFolder, key)
}
