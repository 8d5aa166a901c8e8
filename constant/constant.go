package constant

// ConversionStatus is the lifecycle field of a video record.
type ConversionStatus string

const (
	ConversionStatusPending    ConversionStatus = "pending"
	ConversionStatusProcessing ConversionStatus = "processing"
	ConversionStatusCompleted  ConversionStatus = "completed"
	ConversionStatusFailed     ConversionStatus = "failed"
)

func (s ConversionStatus) String() string {
	return string(s)
}

func (s ConversionStatus) Valid() bool {
	switch s {
	case ConversionStatusPending, ConversionStatusProcessing, ConversionStatusCompleted, ConversionStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s ConversionStatus) Terminal() bool {
	return s == ConversionStatusCompleted || s == ConversionStatusFailed
}

// CanTransition reports whether from -> to is an edge of the lifecycle:
// pending -> processing -> completed | failed.
func CanTransition(from, to ConversionStatus) bool {
	switch from {
	case ConversionStatusPending:
		return to == ConversionStatusProcessing
	case ConversionStatusProcessing:
		return to == ConversionStatusCompleted || to == ConversionStatusFailed
	}
	return false
}

type QueueDriver string

const (
	QueueDriverMemory   QueueDriver = "memory"
	QueueDriverRabbitMQ QueueDriver = "rabbitmq"
	QueueDriverKafka    QueueDriver = "kafka"
)

type DatabaseDriver string

const (
	DatabaseDriverPostgres DatabaseDriver = "postgres"
	DatabaseDriverSQLite   DatabaseDriver = "sqlite"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
