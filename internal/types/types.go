package types

// VideoFrame - внутреннее представление кадра. Оба wire-формата
// (base64 в JSON и бинарный multipart) нормализуются в эту структуру.
type VideoFrame struct {
	FrameID   string `json:"frame_id"`
	StreamID  string `json:"stream_id"`
	ClientID  string `json:"client_id"`
	UserName  string `json:"user_name"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
	Width     int32  `json:"width"`
	Height    int32  `json:"height"`
	Format    string `json:"format"`
}

// Size возвращает размер полезной нагрузки кадра в байтах
func (f *VideoFrame) Size() int {
	if f == nil {
		return 0
	}
	return len(f.Payload)
}
