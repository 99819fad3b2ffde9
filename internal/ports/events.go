package ports

// Topics publiés sur le bus.
const (
	TopicSettingsUpdated = "settings.updated"
	TopicSearchCompleted = "search.completed"
	TopicSubtitleFetched = "subtitle.fetched"
	TopicCacheFlushed    = "cache.flushed"
)

type EventBus interface {
	Publish(topic string, payload []byte)
	Subscribe() (ch <-chan Event, cancel func())
}

type Event struct {
	Topic   string
	Payload []byte
}
