package database

// Migrations is the full ordered schema history. 001 creates the chat and
// unlock tables, 002 seeds the pricing reference data used by the unlock
// pricing engine.
var Migrations = []Migration{
	{
		Version:     "001",
		Description: "initial_schema",
		SQL: `
CREATE TABLE users (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL UNIQUE,
	user_type  TEXT NOT NULL CHECK (user_type IN ('student', 'tutor')),
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE credits (
	user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0)
);

-- Two-party conversations keyed by the ordered user pair. The unique index
-- is what serializes concurrent find-or-create calls for the same pair.
CREATE TABLE conversations (
	id         TEXT PRIMARY KEY,
	user_lo    TEXT NOT NULL REFERENCES users(id),
	user_hi    TEXT NOT NULL REFERENCES users(id),
	created_at DATETIME NOT NULL,
	UNIQUE (user_lo, user_hi),
	CHECK (user_lo < user_hi)
);

CREATE TABLE messages (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	sender_id       TEXT NOT NULL REFERENCES users(id),
	content         TEXT NOT NULL DEFAULT '',
	timestamp       DATETIME NOT NULL,
	is_system       INTEGER NOT NULL DEFAULT 0,
	attachment      TEXT
);

CREATE INDEX idx_messages_conversation_time ON messages(conversation_id, timestamp, id);

CREATE TABLE conversation_participants (
	conversation_id      TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	user_id              TEXT NOT NULL REFERENCES users(id),
	joined_at            DATETIME NOT NULL,
	last_read_message_id TEXT REFERENCES messages(id),
	PRIMARY KEY (conversation_id, user_id)
);

CREATE INDEX idx_participants_user ON conversation_participants(user_id);

CREATE TABLE message_reads (
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL REFERENCES users(id),
	status     TEXT NOT NULL DEFAULT 'sent' CHECK (status IN ('sent', 'delivered', 'seen')),
	read_at    DATETIME,
	PRIMARY KEY (message_id, user_id)
);

CREATE INDEX idx_message_reads_user_status ON message_reads(user_id, status);

CREATE TABLE contact_unlocks (
	unlocker_id TEXT NOT NULL REFERENCES users(id),
	target_id   TEXT NOT NULL REFERENCES users(id),
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (unlocker_id, target_id)
);

CREATE INDEX idx_contact_unlocks_target ON contact_unlocks(target_id, unlocker_id);

CREATE TABLE jobs (
	id          TEXT PRIMARY KEY,
	student_id  TEXT NOT NULL REFERENCES users(id),
	budget      REAL,
	budget_type TEXT NOT NULL DEFAULT 'Fixed',
	total_hours REAL,
	country     TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL
);

CREATE TABLE job_unlocks (
	job_id       TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	tutor_id     TEXT NOT NULL REFERENCES users(id),
	points_spent INTEGER NOT NULL,
	unlocked_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (job_id, tutor_id)
);

CREATE TABLE unlock_pricing_tiers (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	min_rate REAL NOT NULL,
	max_rate REAL,
	points   INTEGER NOT NULL
);

CREATE TABLE country_groups (
	name      TEXT PRIMARY KEY,
	grp       TEXT NOT NULL
);

CREATE TABLE country_group_points (
	grp    TEXT PRIMARY KEY,
	points INTEGER NOT NULL
);
`,
	},
	{
		Version:     "002",
		Description: "seed_pricing_data",
		SQL: `
INSERT INTO unlock_pricing_tiers (min_rate, max_rate, points) VALUES
	(0, 5, 100),
	(6, 10, 175),
	(11, 15, 250),
	(16, 25, 350),
	(26, NULL, 500);

INSERT INTO country_group_points (grp, points) VALUES
	('G1', 250),
	('G2', 200),
	('G3', 150),
	('G4', 100),
	('G5', 100);

INSERT INTO country_groups (name, grp) VALUES
	('United States', 'G1'),
	('United Kingdom', 'G1'),
	('Germany', 'G1'),
	('Australia', 'G1'),
	('Canada', 'G1'),
	('France', 'G1'),
	('Japan', 'G1'),
	('Singapore', 'G1'),
	('United Arab Emirates', 'G1'),
	('Saudi Arabia', 'G1'),
	('China', 'G2'),
	('Brazil', 'G2'),
	('Russia', 'G2'),
	('Mexico', 'G2'),
	('Malaysia', 'G2'),
	('Turkey', 'G2'),
	('South Africa', 'G2'),
	('Poland', 'G2'),
	('India', 'G3'),
	('Bangladesh', 'G3'),
	('Pakistan', 'G3'),
	('Vietnam', 'G3'),
	('Egypt', 'G3'),
	('Philippines', 'G3'),
	('Indonesia', 'G3'),
	('Nigeria', 'G3'),
	('Kenya', 'G3'),
	('Afghanistan', 'G4'),
	('Ethiopia', 'G4'),
	('Haiti', 'G4'),
	('Yemen', 'G4'),
	('Uganda', 'G4'),
	('Rwanda', 'G4'),
	('Greenland', 'G5'),
	('Bermuda', 'G5'),
	('Gibraltar', 'G5'),
	('Isle of Man', 'G5');
`,
	},
}
