package types

// =============================================================================
// 💬 对话状态模型
// =============================================================================
// 所有时间戳均为 Unix 毫秒，0 表示"从未发生"。
// JSON 字段采用 camelCase，与持久化文档及浏览器客户端保持一致。

// Message 是对话中的一条不可变消息
type Message struct {
	ID         string `json:"id" bson:"id"`
	SpeakerKey string `json:"speakerKey" bson:"speakerKey"`
	Speaker    string `json:"speaker" bson:"speaker"`
	Content    string `json:"content" bson:"content"`
	Color      string `json:"color" bson:"color"`
	Timestamp  int64  `json:"timestamp" bson:"timestamp"`
}

// ConversationState 是单例对话文档
type ConversationState struct {
	Messages            []Message `json:"messages" bson:"messages"`
	CurrentSpeakerIndex int       `json:"currentSpeakerIndex" bson:"currentSpeakerIndex"`
	MessageCount        int64     `json:"messageCount" bson:"messageCount"`
	IsGenerating        bool      `json:"isGenerating" bson:"isGenerating"`
	GenerationOwner     string    `json:"generationOwner,omitempty" bson:"generationOwner,omitempty"`
	GenerationStartedAt int64     `json:"generationStartedAt,omitempty" bson:"generationStartedAt,omitempty"`
	LastMessageTime     int64     `json:"lastMessageTime" bson:"lastMessageTime"`
	LastArchiveTime     int64     `json:"lastArchiveTime" bson:"lastArchiveTime"`
	CreatedAt           int64     `json:"createdAt" bson:"createdAt"`
}

// NewConversationState 返回给定时刻创建的空白对话
func NewConversationState(now int64) *ConversationState {
	return &ConversationState{
		Messages:        []Message{},
		CreatedAt:       now,
		LastArchiveTime: now,
	}
}

// Clone returns a copy that shares no slice storage with s.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return &c
}

// LastMessage returns the newest message, if any.
func (s *ConversationState) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// ArchiveTrigger 标记归档记录的来源
type ArchiveTrigger string

const (
	ArchiveTriggerScheduled ArchiveTrigger = "scheduled"
	ArchiveTriggerManual    ArchiveTrigger = "manual"
	ArchiveTriggerReset     ArchiveTrigger = "reset"
)

// ArchiveRecord 是追加写入、不可修改的对话快照
type ArchiveRecord struct {
	ID           string         `json:"id" bson:"_id"`
	Messages     []Message      `json:"messages" bson:"messages"`
	MessageCount int64          `json:"messageCount" bson:"messageCount"`
	ArchivedAt   int64          `json:"archivedAt" bson:"archivedAt"`
	StartTime    int64          `json:"startTime,omitempty" bson:"startTime,omitempty"`
	EndTime      int64          `json:"endTime,omitempty" bson:"endTime,omitempty"`
	Preview      string         `json:"preview,omitempty" bson:"preview,omitempty"`
	Trigger      ArchiveTrigger `json:"trigger,omitempty" bson:"trigger,omitempty"`
}

// ArchiveSummary 是归档列表中的一项
type ArchiveSummary struct {
	ID           string         `json:"id"`
	MessageCount int64          `json:"messageCount"`
	ArchivedAt   int64          `json:"archivedAt"`
	StartTime    int64          `json:"startTime,omitempty"`
	EndTime      int64          `json:"endTime,omitempty"`
	Preview      string         `json:"preview"`
	Trigger      ArchiveTrigger `json:"trigger,omitempty"`
}

// PersonaStats 是单个角色的计数器
type PersonaStats struct {
	MessageCount int64 `json:"messageCount" bson:"messageCount"`
	LastActive   int64 `json:"lastActive" bson:"lastActive"`
}

// ContextKind 区分外部注入的上下文条目类型
type ContextKind string

const (
	ContextKindNote ContextKind = "note"
	ContextKindTask ContextKind = "task"
)

// TaskStatus 任务摘要的状态
type TaskStatus string

const (
	TaskStatusOpen TaskStatus = "open"
	TaskStatusDone TaskStatus = "done"
)

// ContextEntry 是外部提供、供生成时参考的上下文条目
type ContextEntry struct {
	ID        string      `json:"id" bson:"_id"`
	Kind      ContextKind `json:"kind" bson:"kind"`
	Title     string      `json:"title,omitempty" bson:"title,omitempty"`
	Content   string      `json:"content" bson:"content"`
	Status    TaskStatus  `json:"status,omitempty" bson:"status,omitempty"`
	CreatedAt int64       `json:"createdAt" bson:"createdAt"`
}
