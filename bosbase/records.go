package bosbase

// RecordService scopes realtime subscriptions to one collection.
// Topics are `"<collection>/<topic>"`, where the topic is a record id or `*`.
type RecordService struct {
	realtime           *RealtimeService
	collectionIdOrName string
}

func NewRecordService(realtime *RealtimeService, collectionIdOrName string) *RecordService {
	return &RecordService{
		realtime:           realtime,
		collectionIdOrName: collectionIdOrName,
	}
}

func (self *RecordService) CollectionIdOrName() string {
	return self.collectionIdOrName
}

func (self *RecordService) Subscribe(topic string, callback RealtimeCallback, options *SubscribeOptions) (UnsubscribeFunction, error) {
	if topic == "" {
		return nil, ErrInvalidTopic
	}
	return self.realtime.Subscribe(self.topic(topic), callback, options)
}

// An empty topic removes every subscription of the collection.
func (self *RecordService) Unsubscribe(topic string) {
	if topic == "" {
		self.realtime.UnsubscribeByPrefix(self.collectionIdOrName + "/")
	} else {
		self.realtime.Unsubscribe(self.topic(topic))
	}
}

func (self *RecordService) topic(topic string) string {
	return self.collectionIdOrName + "/" + topic
}
