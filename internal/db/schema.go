package db

// SchemaSQL defines the conversation table. Message history is an embedded
// array so a turn can be appended with a single UPDATE.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON conversation TYPE string DEFAULT "New Conversation";
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime DEFAULT time::now();

    DEFINE FIELD IF NOT EXISTS messages ON conversation TYPE array<object> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS messages.* ON conversation TYPE object;
    DEFINE FIELD IF NOT EXISTS messages.*.id ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS messages.*.role ON conversation TYPE string ASSERT $value IN ["user", "assistant"];
    DEFINE FIELD IF NOT EXISTS messages.*.content ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS messages.*.created_at ON conversation TYPE datetime;

    -- Stored images are references: data holds a prefix only, truncated is always true
    DEFINE FIELD IF NOT EXISTS messages.*.images ON conversation TYPE option<array<object>>;
    DEFINE FIELD IF NOT EXISTS messages.*.images.* ON conversation TYPE object;
    DEFINE FIELD IF NOT EXISTS messages.*.images.*.id ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS messages.*.images.*.type ON conversation TYPE string ASSERT $value = "image";
    DEFINE FIELD IF NOT EXISTS messages.*.images.*.media_type ON conversation TYPE string
        ASSERT $value IN ["image/jpeg", "image/png", "image/gif", "image/webp"];
    DEFINE FIELD IF NOT EXISTS messages.*.images.*.data ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS messages.*.images.*.name ON conversation TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS messages.*.images.*.truncated ON conversation TYPE bool DEFAULT false;

    DEFINE INDEX IF NOT EXISTS conversation_updated_at ON conversation FIELDS updated_at;
    DEFINE INDEX IF NOT EXISTS conversation_created_at ON conversation FIELDS created_at;
`
