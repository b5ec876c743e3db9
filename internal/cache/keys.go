package cache

func poiHashKey(workspaceID string) string {
	return "workspace:" + workspaceID + ":poi"
}

func poiRemovedKey(workspaceID string) string {
	return "workspace:" + workspaceID + ":poi:removed"
}

// Plan days known to the hydrated workspace.
func planDaysKey(workspaceID string) string {
	return "workspace:" + workspaceID + ":days"
}

func scheduledKey(planDayID string) string {
	return "workspace:" + planDayID + ":scheduled"
}

func connectionHashKey(planDayID string) string {
	return "planday:" + planDayID + ":connection"
}

func connectionRemovedKey(planDayID string) string {
	return "planday:" + planDayID + ":connection:removed"
}

// Set once a plan day's connections are loaded, so an empty day stays warm.
func connectionLoadedKey(planDayID string) string {
	return "planday:" + planDayID + ":connection:loaded"
}
