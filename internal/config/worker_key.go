package config

type WorkerKeyStruct struct {
	// TestDeadlines is a sorted set of active test session ids scored by
	// their unix deadline.
	TestDeadlines string
}

var WorkerKey = &WorkerKeyStruct{
	TestDeadlines: "test_sessions:deadlines",
}
