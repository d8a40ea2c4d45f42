package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

func (db *PgConverseRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (username, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, username, email, created_at",
		params.Username,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.EmailAddress,
		&u.CreatedAt,
	)

	return u, err
}

func (db *PgConverseRepository) GetAccountById(accountId int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, created_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.CreatedAt,
	)

	return user, err
}

func (db *PgConverseRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash, created_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
	)

	return user, err
}

func (db *PgConverseRepository) GetAccountsByIds(accountIds []int) ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT id, username, email FROM accounts WHERE id = ANY($1)",
		pq.Array(accountIds),
	)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Username, &u.EmailAddress); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgConverseRepository) CreateChat(params CreateChatParams) (Chat, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Chat{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res := tx.QueryRow(
		"INSERT INTO chats (external_id, kind, name, owner_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id, external_id, kind, name, owner_id, created_at, updated_at",
		params.ExternalId,
		params.Kind,
		params.Name,
		params.OwnerId,
		time.Now().UTC(),
	)

	var chat Chat
	if err := res.Scan(
		&chat.Id,
		&chat.ExternalId,
		&chat.Kind,
		&chat.Name,
		&chat.OwnerId,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	); err != nil {
		return Chat{}, err
	}

	for _, memberId := range params.MemberIds {
		if _, err := tx.Exec(
			"INSERT INTO chat_members (chat_id, account_id, created_at) VALUES ($1, $2, $3) "+
				"ON CONFLICT DO NOTHING",
			chat.Id, memberId, time.Now().UTC(),
		); err != nil {
			return Chat{}, fmt.Errorf("add member %d: %w", memberId, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Chat{}, fmt.Errorf("commit tx: %w", err)
	}

	return chat, nil
}

func (db *PgConverseRepository) GetChatByExternalId(externalId string) (Chat, error) {
	row := db.conn.QueryRow(
		"SELECT id, external_id, kind, name, owner_id, created_at, updated_at FROM chats "+
			"WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var chat Chat
	err := row.Scan(
		&chat.Id,
		&chat.ExternalId,
		&chat.Kind,
		&chat.Name,
		&chat.OwnerId,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)

	return chat, err
}

func (db *PgConverseRepository) GetChatWithMembers(externalId string) (*Chat, error) {
	query := `
		SELECT
				c.id AS chat_id,
				c.external_id,
				c.kind,
				c.name,
				c.owner_id,
				c.created_at,
				c.updated_at,
				m.account_id,
				a.username,
				a.email
		FROM chats c
		LEFT JOIN chat_members m ON c.id = m.chat_id
		LEFT JOIN accounts a ON m.account_id = a.id
		WHERE c.external_id = $1;
`

	rows, err := db.conn.Query(query, externalId)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chat with members: %w", err)
	}
	defer rows.Close()

	var chat *Chat
	for rows.Next() {
		var (
			chatId     int
			extId      string
			kind       string
			name       string
			ownerId    int
			createdAt  time.Time
			updatedAt  time.Time
			accountId  sql.NullInt64
			username   sql.NullString
			email      sql.NullString
		)

		if err := rows.Scan(
			&chatId,
			&extId,
			&kind,
			&name,
			&ownerId,
			&createdAt,
			&updatedAt,
			&accountId,
			&username,
			&email,
		); err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}

		if chat == nil {
			chat = &Chat{
				Id:         chatId,
				ExternalId: extId,
				Kind:       kind,
				Name:       name,
				OwnerId:    ownerId,
				CreatedAt:  createdAt,
				UpdatedAt:  updatedAt,
			}
		}

		if accountId.Valid {
			chat.Members = append(chat.Members, User{
				Id:           int(accountId.Int64),
				Username:     username.String,
				EmailAddress: email.String,
			})
		}
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if chat == nil {
		return nil, sql.ErrNoRows
	}

	return chat, nil
}

func (db *PgConverseRepository) ListChatsForAccount(accountId int, kind string) ([]Chat, error) {
	rows, err := db.conn.Query(
		"SELECT c.id, c.external_id, c.kind, c.name, c.owner_id, c.created_at, c.updated_at "+
			"FROM chats c JOIN chat_members m ON c.id = m.chat_id "+
			"WHERE m.account_id = $1 AND ($2 = '' OR c.kind = $2) "+
			"ORDER BY c.updated_at DESC",
		accountId, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(
			&c.Id,
			&c.ExternalId,
			&c.Kind,
			&c.Name,
			&c.OwnerId,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}

	return chats, rows.Err()
}

func (db *PgConverseRepository) IsChatMember(chatId, accountId int) bool {
	row := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM chat_members WHERE chat_id = $1 AND account_id = $2)",
		chatId, accountId,
	)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false
	}

	return exists
}

func (db *PgConverseRepository) AddChatMember(chatId, accountId int) error {
	_, err := db.conn.Exec(
		"INSERT INTO chat_members (chat_id, account_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT DO NOTHING",
		chatId, accountId, time.Now().UTC(),
	)

	return err
}

func (db *PgConverseRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (chat_id, account_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, chat_id, account_id, content, created_at",
		params.ChatId,
		params.UserId,
		params.Content,
		time.Now().UTC(),
	)

	var m Message
	err := res.Scan(
		&m.Id,
		&m.ChatId,
		&m.UserId,
		&m.Content,
		&m.CreatedAt,
	)

	return m, err
}

func (db *PgConverseRepository) GetMessages(chatId, before, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, chat_id, account_id, content, created_at FROM messages "+
			"WHERE chat_id = $1 AND ($2 = 0 OR id < $2) "+
			"ORDER BY id DESC LIMIT $3",
		chatId, before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.ChatId, &m.UserId, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

func (db *PgConverseRepository) CreateNotification(message string, recipientId int) (Notification, error) {
	res := db.conn.QueryRow(
		"INSERT INTO notifications (message, recipient_id, created_at) "+
			"VALUES ($1, $2, $3) RETURNING id, message, recipient_id, created_at",
		message,
		recipientId,
		time.Now().UTC(),
	)

	var n Notification
	err := res.Scan(
		&n.Id,
		&n.Message,
		&n.RecipientId,
		&n.CreatedAt,
	)

	return n, err
}

func (db *PgConverseRepository) ListNotifications(recipientId int) ([]Notification, error) {
	rows, err := db.conn.Query(
		"SELECT id, message, recipient_id, created_at FROM notifications "+
			"WHERE recipient_id = $1 ORDER BY created_at DESC",
		recipientId,
	)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.Id, &n.Message, &n.RecipientId, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

func (db *PgConverseRepository) CreateFriendship(requesterId, recipientId int) (Friendship, error) {
	res := db.conn.QueryRow(
		"INSERT INTO friendships (requester_id, recipient_id, status, created_at, updated_at) "+
			"VALUES ($1, $2, 'PENDING', $3, $3) RETURNING id, requester_id, recipient_id, status, created_at, updated_at",
		requesterId,
		recipientId,
		time.Now().UTC(),
	)

	var f Friendship
	err := res.Scan(
		&f.Id,
		&f.RequesterId,
		&f.RecipientId,
		&f.Status,
		&f.CreatedAt,
		&f.UpdatedAt,
	)

	return f, err
}

func (db *PgConverseRepository) GetFriendship(id int) (Friendship, error) {
	row := db.conn.QueryRow(
		"SELECT id, requester_id, recipient_id, status, created_at, updated_at FROM friendships "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var f Friendship
	err := row.Scan(
		&f.Id,
		&f.RequesterId,
		&f.RecipientId,
		&f.Status,
		&f.CreatedAt,
		&f.UpdatedAt,
	)

	return f, err
}

func (db *PgConverseRepository) UpdateFriendshipStatus(id int, status string) (Friendship, error) {
	res := db.conn.QueryRow(
		"UPDATE friendships SET status = $2, updated_at = $3 "+
			"WHERE id = $1 RETURNING id, requester_id, recipient_id, status, created_at, updated_at",
		id,
		status,
		time.Now().UTC(),
	)

	var f Friendship
	err := res.Scan(
		&f.Id,
		&f.RequesterId,
		&f.RecipientId,
		&f.Status,
		&f.CreatedAt,
		&f.UpdatedAt,
	)

	return f, err
}
