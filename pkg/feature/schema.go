package feature

// Canonical raw feature names per modality, in the order the fit path visits
// them. ScalingParameters may record any order; these lists are what the fit
// job uses and what rawFeatures is able to produce.
var (
	NetworkFeatureNames = []string{
		"protocol", "src_ip", "dest_ip", "src_port", "dest_port",
	}

	ProcessFeatureNames = []string{
		"process_id", "virtual_size", "resident_size", "priority",
		"syscalls_unix", "syscalls_mach", "faults", "pageins",
		"cow_faults", "messages_sent", "messages_received", "csw",
		"threadnum", "numrunning", "process_name", "path",
	}
)
