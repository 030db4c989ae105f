package persona

// CharacterSchema is the JSON Schema for character file validation
const CharacterSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {
      "type": "string",
      "minLength": 1,
      "description": "Character name"
    },
    "system": {
      "type": "string",
      "description": "Core system prompt defining the character"
    },
    "bio": {
      "type": "array",
      "items": {"type": "string"}
    },
    "lore": {
      "type": "array",
      "items": {"type": "string"}
    },
    "style": {
      "type": "object",
      "properties": {
        "all": {"type": "array", "items": {"type": "string"}},
        "chat": {"type": "array", "items": {"type": "string"}},
        "post": {"type": "array", "items": {"type": "string"}}
      }
    },
    "adjectives": {
      "type": "array",
      "items": {"type": "string"}
    },
    "topics": {
      "type": "array",
      "items": {"type": "string"}
    },
    "messageExamples": {
      "type": "array",
      "items": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["user", "content"],
          "properties": {
            "user": {"type": "string"},
            "content": {
              "type": "object",
              "required": ["text"],
              "properties": {
                "text": {"type": "string"}
              }
            }
          }
        }
      }
    },
    "postExamples": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`
