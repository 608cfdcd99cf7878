package store

import (
	"database/sql"
	"strings"
)

// StoreChatMetadata upserts a chat row, advancing last_message_time only forward.
// Timestamps are RFC3339 strings so lexical comparison matches time order.
func (s *Store) StoreChatMetadata(jid, timestamp string) error {
	_, err := s.db.Exec(
		`INSERT INTO chats (jid, last_message_time) VALUES (?, ?)
		 ON CONFLICT(jid) DO UPDATE SET last_message_time = excluded.last_message_time
		 WHERE excluded.last_message_time > chats.last_message_time`,
		jid, timestamp)
	return err
}

// UpdateChatName sets the display name for a chat.
func (s *Store) UpdateChatName(jid, name string) error {
	_, err := s.db.Exec(`UPDATE chats SET name = ? WHERE jid = ?`, name, jid)
	return err
}

// AllChats returns every known chat, most recently active first.
func (s *Store) AllChats() ([]*ChatInfo, error) {
	rows, err := s.db.Query(
		`SELECT jid, name, last_message_time FROM chats ORDER BY last_message_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []*ChatInfo
	for rows.Next() {
		var c ChatInfo
		var name sql.NullString
		if err := rows.Scan(&c.JID, &name, &c.LastMessageTime); err != nil {
			return nil, err
		}
		c.Name = name.String
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}

// StoreMessage inserts a message, ignoring duplicates by (id, chat_jid).
func (s *Store) StoreMessage(m *Message) error {
	fromMe := 0
	if m.IsFromMe {
		fromMe = 1
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO messages
		 (id, chat_jid, sender, sender_name, content, timestamp, is_from_me)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatJID, m.Sender, m.SenderName, m.Content, m.Timestamp, fromMe)
	return err
}

// NewMessagesSince returns inbound messages across the given chats that
// arrived strictly after the cursor, plus the new cursor position.
// Messages whose content starts with botPrefix are skipped so the
// assistant's own relayed output never re-enters the pipeline, but they
// still advance the returned cursor.
func (s *Store) NewMessagesSince(chatJIDs []string, cursor, botPrefix string) ([]*Message, string, error) {
	if len(chatJIDs) == 0 {
		return nil, cursor, nil
	}
	placeholders := strings.Repeat("?,", len(chatJIDs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(chatJIDs)+1)
	for _, jid := range chatJIDs {
		args = append(args, jid)
	}
	args = append(args, cursor)

	rows, err := s.db.Query(
		`SELECT id, chat_jid, sender, sender_name, content, timestamp, is_from_me
		 FROM messages
		 WHERE chat_jid IN (`+placeholders+`) AND timestamp > ? AND is_from_me = 0
		 ORDER BY timestamp`, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	newCursor := cursor
	var msgs []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, "", err
		}
		if m.Timestamp > newCursor {
			newCursor = m.Timestamp
		}
		if botPrefix != "" && strings.HasPrefix(m.Content, botPrefix) {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, newCursor, rows.Err()
}

// MessagesSince returns one chat's inbound messages after the cursor,
// oldest first, with the same botPrefix filtering as NewMessagesSince.
func (s *Store) MessagesSince(chatJID, cursor, botPrefix string) ([]*Message, error) {
	rows, err := s.db.Query(
		`SELECT id, chat_jid, sender, sender_name, content, timestamp, is_from_me
		 FROM messages
		 WHERE chat_jid = ? AND timestamp > ? AND is_from_me = 0
		 ORDER BY timestamp`, chatJID, cursor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		if botPrefix != "" && strings.HasPrefix(m.Content, botPrefix) {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	var sender, senderName, content sql.NullString
	var fromMe int
	err := row.Scan(&m.ID, &m.ChatJID, &sender, &senderName, &content, &m.Timestamp, &fromMe)
	if err != nil {
		return nil, err
	}
	m.Sender = sender.String
	m.SenderName = senderName.String
	m.Content = content.String
	m.IsFromMe = fromMe != 0
	return &m, nil
}
