package cache

import "fmt"

// Key layout:
// - roomKey(docID):           candidate member set (Set<userId>)
// - memberKey(docID,userID):  liveness key ("1" with TTL)
// - namesKey(docID):          userId -> username map (Hash)
// - cursorKey(docID,userID):  latest cursor JSON (String with TTL)
const (
	keyRoomFmt   = "presence:room:%s"
	keyMemberFmt = "presence:member:%s:%s"
	keyNamesFmt  = "presence:room:names:%s"
	keyCursorFmt = "presence:cursor:%s:%s"
)

func roomKey(docID string) string           { return fmt.Sprintf(keyRoomFmt, docID) }
func memberKey(docID, userID string) string { return fmt.Sprintf(keyMemberFmt, docID, userID) }
func namesKey(docID string) string          { return fmt.Sprintf(keyNamesFmt, docID) }
func cursorKey(docID, userID string) string { return fmt.Sprintf(keyCursorFmt, docID, userID) }
