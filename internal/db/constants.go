package db

// timeLayout is how timestamps are written so SQLite date functions can read
// them back.
const timeLayout = "2006-01-02 15:04:05"

// defaultListLimit caps ListScans when no limit is given.
const defaultListLimit = 50
