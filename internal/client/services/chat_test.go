package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dmitrijs2005/gophchat/internal/api"
	"github.com/dmitrijs2005/gophchat/internal/client/codec"
	"github.com/dmitrijs2005/gophchat/internal/client/keyvault"
	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte("\x89PNG\x0D\x0A\x1A\x0A\x00\x00\x00\x0DIHDR")

type fakeChatClient struct {
	mu sync.Mutex

	users    []api.User
	history  map[string][]api.Message
	sent     []*api.SendMessageRequest
	listErr  error
	sendErr  error
	getErr   error
	listHits int

	// beforeHistory runs inside GetMessages, used to race a selection.
	beforeHistory func()

	events []api.Event
}

func (f *fakeChatClient) ListUsers(context.Context) ([]api.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHits++
	return f.users, f.listErr
}

func (f *fakeChatClient) GetMessages(_ context.Context, peerID string) ([]api.Message, error) {
	if f.beforeHistory != nil {
		f.beforeHistory()
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.history[peerID], nil
}

func (f *fakeChatClient) SendMessage(_ context.Context, req *api.SendMessageRequest) (*api.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, req)
	return &api.Message{
		ID: "sent-" + req.ReceiverID, SenderID: "me", ReceiverID: req.ReceiverID,
		Text: req.Text, Image: req.Image, IsEncrypted: req.IsEncrypted,
		EncryptionIV: req.EncryptionIV, SenderPublicKey: req.SenderPublicKey,
	}, nil
}

func (f *fakeChatClient) GetImageUploadURL(context.Context) (string, string, error) {
	return "images/new.png", "https://put.example/images/new.png", nil
}

func (f *fakeChatClient) GetImageURL(_ context.Context, key string) (string, error) {
	return "https://get.example/" + key, nil
}

func (f *fakeChatClient) Subscribe(_ context.Context, handle func(api.Event)) error {
	for _, ev := range f.events {
		handle(ev)
	}
	return nil
}

type mapStore map[string][]byte

func (m mapStore) Get(_ context.Context, k string) ([]byte, error) { return m[k], nil }
func (m mapStore) Set(_ context.Context, k string, v []byte) error { m[k] = v; return nil }
func (m mapStore) Delete(_ context.Context, k string) error        { delete(m, k); return nil }

// peerDevice is the other side of the conversation with its own vault.
type peerDevice struct {
	id    string
	vault *keyvault.Vault
	codec *codec.Codec
}

func newPeerDevice(t *testing.T, id string) *peerDevice {
	t.Helper()
	v := keyvault.New(mapStore{}, logging.Discard())
	return &peerDevice{id: id, vault: v, codec: codec.New(v, logging.Discard())}
}

func (p *peerDevice) pub(t *testing.T) string {
	t.Helper()
	k, err := p.vault.PublicKey(context.Background(), p.id)
	require.NoError(t, err)
	return k
}

func newChat(t *testing.T, fc *fakeChatClient) (*ChatService, *peerDevice) {
	t.Helper()
	me := newPeerDevice(t, "me")
	s := NewChatService(fc, me.codec, logging.Discard())
	s.SetUser(&api.User{ID: "me", Username: "me", EncryptionPublicKey: me.pub(t)})
	return s, me
}

func TestChat_NotSignedIn(t *testing.T) {
	s := NewChatService(&fakeChatClient{}, codec.New(keyvault.New(mapStore{}, logging.Discard()), logging.Discard()), logging.Discard())
	ctx := context.Background()

	_, err := s.LoadUsers(ctx)
	require.ErrorIs(t, err, ErrNotSignedIn)
	_, err = s.SelectPeer(ctx, "bob")
	require.ErrorIs(t, err, ErrNotSignedIn)
	_, err = s.Send(ctx, "hi", "")
	require.ErrorIs(t, err, ErrNotSignedIn)
	assert.Nil(t, s.HandleEvent(ctx, api.NewMessageEvent(&api.Message{SenderID: "bob"})))
}

func TestChat_LoadUsersAndFind(t *testing.T) {
	fc := &fakeChatClient{users: []api.User{{ID: "b", Username: "bob"}, {ID: "a", Username: "alice"}}}
	s, _ := newChat(t, fc)

	users, err := s.LoadUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)

	u, err := s.FindUser("BOB")
	require.NoError(t, err)
	assert.Equal(t, "b", u.ID)

	u, err = s.FindUser("a")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	_, err = s.FindUser("carol")
	require.ErrorIs(t, err, ErrUnknownUser)

	fc.listErr = errors.New("down")
	_, err = s.LoadUsers(context.Background())
	require.Error(t, err)
}

func TestChat_SelectPeerDecodesHistoryInOrder(t *testing.T) {
	ctx := context.Background()
	bob := newPeerDevice(t, "bob")
	fc := &fakeChatClient{}
	s, me := newChat(t, fc)

	toMe, err := bob.codec.Encode(ctx, "bob", "me", me.pub(t), "hi me", "")
	require.NoError(t, err)
	fromMe, err := me.codec.Encode(ctx, "me", "bob", bob.pub(t), "hi bob", "")
	require.NoError(t, err)

	fc.users = []api.User{{ID: "bob", Username: "bob", EncryptionPublicKey: bob.pub(t)}}
	fc.history = map[string][]api.Message{"bob": {
		{ID: "1", SenderID: "bob", ReceiverID: "me", Text: toMe.Text, IsEncrypted: true, EncryptionIV: toMe.EncryptionIV, SenderPublicKey: toMe.SenderPublicKey},
		{ID: "2", SenderID: "me", ReceiverID: "bob", Text: fromMe.Text, IsEncrypted: true, EncryptionIV: fromMe.EncryptionIV, SenderPublicKey: fromMe.SenderPublicKey},
		{ID: "3", SenderID: "bob", ReceiverID: "me", Text: "legacy plaintext"},
		{ID: "4", SenderID: "bob", ReceiverID: "me", Text: "Zm9v", IsEncrypted: true},
	}}
	_, err = s.LoadUsers(ctx)
	require.NoError(t, err)

	conv, err := s.SelectPeer(ctx, "bob")
	require.NoError(t, err)

	var texts []string
	for _, d := range conv {
		texts = append(texts, d.Text)
	}
	assert.Equal(t, []string{"hi me", "hi bob", "legacy plaintext", codec.PlaceholderEncrypted}, texts)
	assert.Equal(t, conv, s.Conversation())

	peer, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, "bob", peer.ID)
}

func TestChat_SelectPeerUnknownAndErrors(t *testing.T) {
	fc := &fakeChatClient{users: []api.User{{ID: "bob", Username: "bob"}}, getErr: errors.New("down")}
	s, _ := newChat(t, fc)
	ctx := context.Background()

	_, err := s.SelectPeer(ctx, "nobody")
	require.ErrorIs(t, err, ErrUnknownUser)

	_, err = s.LoadUsers(ctx)
	require.NoError(t, err)
	_, err = s.SelectPeer(ctx, "bob")
	require.Error(t, err)
}

func TestChat_StaleSelectionIsDiscarded(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChatClient{
		users: []api.User{{ID: "bob", Username: "bob"}, {ID: "carol", Username: "carol"}},
		history: map[string][]api.Message{
			"bob":   {{ID: "b1", SenderID: "bob", Text: "from bob"}},
			"carol": {{ID: "c1", SenderID: "carol", Text: "from carol"}},
		},
	}
	s, _ := newChat(t, fc)
	_, err := s.LoadUsers(ctx)
	require.NoError(t, err)

	// while bob's history is in flight the user switches to carol
	fc.beforeHistory = func() {
		fc.beforeHistory = nil
		_, err := s.SelectPeer(ctx, "carol")
		require.NoError(t, err)
	}

	_, err = s.SelectPeer(ctx, "bob")
	require.ErrorIs(t, err, ErrStaleSelection)

	conv := s.Conversation()
	require.Len(t, conv, 1)
	assert.Equal(t, "from carol", conv[0].Text)
	peer, _ := s.Selected()
	assert.Equal(t, "carol", peer.ID)
}

func TestChat_HandleEvent(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChatClient{
		users:   []api.User{{ID: "bob", Username: "bob"}, {ID: "carol", Username: "carol"}},
		history: map[string][]api.Message{},
	}
	s, _ := newChat(t, fc)
	_, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	_, err = s.SelectPeer(ctx, "bob")
	require.NoError(t, err)

	u := s.HandleEvent(ctx, api.OnlineUsersEvent([]string{"carol", "bob"}))
	require.NotNil(t, u)
	assert.Equal(t, []string{"bob", "carol"}, u.Online)
	assert.True(t, s.IsOnline("bob"))

	u = s.HandleEvent(ctx, api.NewMessageEvent(&api.Message{ID: "m1", SenderID: "bob", ReceiverID: "me", Text: "live"}))
	require.NotNil(t, u)
	require.NotNil(t, u.Message)
	assert.Equal(t, "live", u.Message.Text)

	u = s.HandleEvent(ctx, api.NewMessageEvent(&api.Message{ID: "m2", SenderID: "carol", ReceiverID: "me", Text: "psst"}))
	require.NotNil(t, u)
	assert.Nil(t, u.Message)
	assert.Equal(t, "carol", u.FromID)
	assert.Equal(t, 1, s.Unread("carol"))

	conv := s.Conversation()
	require.Len(t, conv, 1)
	assert.Equal(t, "m1", conv[0].Message.ID)

	assert.Nil(t, s.HandleEvent(ctx, api.Event{Type: common.EventNewMessage}))
	assert.Nil(t, s.HandleEvent(ctx, api.Event{Type: "typing"}))

	// opening carol clears her unread count
	_, err = s.SelectPeer(ctx, "carol")
	require.NoError(t, err)
	assert.Zero(t, s.Unread("carol"))

	u = s.HandleEvent(ctx, api.OnlineUsersEvent(nil))
	assert.Empty(t, u.Online)
	assert.False(t, s.IsOnline("bob"))
}

func TestChat_LiveMessageDuringHistoryLoadIsKept(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChatClient{
		users:   []api.User{{ID: "bob", Username: "bob"}},
		history: map[string][]api.Message{"bob": {{ID: "h1", SenderID: "bob", Text: "old"}}},
	}
	s, _ := newChat(t, fc)
	_, err := s.LoadUsers(ctx)
	require.NoError(t, err)

	fc.beforeHistory = func() {
		s.HandleEvent(ctx, api.NewMessageEvent(&api.Message{ID: "h1", SenderID: "bob", Text: "old"}))
		s.HandleEvent(ctx, api.NewMessageEvent(&api.Message{ID: "n1", SenderID: "bob", Text: "new"}))
	}

	conv, err := s.SelectPeer(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, conv, 2)
	assert.Equal(t, "old", conv[0].Text)
	assert.Equal(t, "new", conv[1].Text)
}

func TestChat_SendEncryptsForSelectedPeer(t *testing.T) {
	ctx := context.Background()
	bob := newPeerDevice(t, "bob")
	fc := &fakeChatClient{history: map[string][]api.Message{}}
	s, _ := newChat(t, fc)
	fc.users = []api.User{{ID: "bob", Username: "bob", EncryptionPublicKey: bob.pub(t)}}

	_, err := s.Send(ctx, "hello", "")
	require.ErrorIs(t, err, ErrNoPeerSelected)

	_, err = s.LoadUsers(ctx)
	require.NoError(t, err)
	_, err = s.SelectPeer(ctx, "bob")
	require.NoError(t, err)

	d, err := s.Send(ctx, "  hello  ", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", d.Text)

	require.Len(t, fc.sent, 1)
	req := fc.sent[0]
	assert.True(t, req.IsEncrypted)
	assert.NotEqual(t, "hello", req.Text)

	// bob reads it with the key snapshot from the record
	got := bob.codec.Decode(ctx, api.Message{
		SenderID: "me", Text: req.Text, IsEncrypted: true,
		EncryptionIV: req.EncryptionIV, SenderPublicKey: req.SenderPublicKey,
	}, "bob", "")
	assert.Equal(t, "hello", got.Text)

	conv := s.Conversation()
	require.Len(t, conv, 1)
	assert.Equal(t, "hello", conv[0].Text)

	_, err = s.Send(ctx, "   ", "")
	require.ErrorIs(t, err, common.ErrEmptyMessage)
}

func TestChat_SendRefetchesMissingPeerKey(t *testing.T) {
	ctx := context.Background()
	bob := newPeerDevice(t, "bob")
	fc := &fakeChatClient{users: []api.User{{ID: "bob", Username: "bob"}}, history: map[string][]api.Message{}}
	s, _ := newChat(t, fc)
	_, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	_, err = s.SelectPeer(ctx, "bob")
	require.NoError(t, err)

	_, err = s.Send(ctx, "hi", "")
	require.ErrorIs(t, err, common.ErrRecipientKeyMissing)
	assert.Equal(t, 2, fc.listHits)

	// bob signs in and publishes a key
	fc.mu.Lock()
	fc.users = []api.User{{ID: "bob", Username: "bob", EncryptionPublicKey: bob.pub(t)}}
	fc.mu.Unlock()

	_, err = s.Send(ctx, "hi", "")
	require.NoError(t, err)
}

func TestChat_SendImage(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChatClient{users: []api.User{{ID: "bob", Username: "bob"}}, history: map[string][]api.Message{}}
	s, _ := newChat(t, fc)
	_, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	_, err = s.SelectPeer(ctx, "bob")
	require.NoError(t, err)

	var gotURL, gotType string
	orig := uploadImage
	t.Cleanup(func() { uploadImage = orig })
	uploadImage = func(_ context.Context, url, contentType string, data []byte) error {
		gotURL, gotType = url, contentType
		return nil
	}

	dir := t.TempDir()
	img := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(img, pngHeader, 0o600))

	d, err := s.Send(ctx, "", img)
	require.NoError(t, err)
	assert.Equal(t, "images/new.png", d.Message.Image)
	assert.False(t, fc.sent[0].IsEncrypted)
	assert.Equal(t, "https://put.example/images/new.png", gotURL)
	assert.Equal(t, "image/png", gotType)

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain text"), 0o600))
	_, err = s.Send(ctx, "", txt)
	require.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = s.Send(ctx, "", filepath.Join(dir, "missing.png"))
	require.Error(t, err)

	uploadImage = func(context.Context, string, string, []byte) error { return errors.New("403") }
	_, err = s.Send(ctx, "", img)
	require.ErrorContains(t, err, "upload image")
}

func TestChat_SendImageWithTextNeedsPeerKeyBeforeUpload(t *testing.T) {
	ctx := context.Background()
	fc := &fakeChatClient{users: []api.User{{ID: "bob", Username: "bob"}}, history: map[string][]api.Message{}}
	s, _ := newChat(t, fc)
	_, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	_, err = s.SelectPeer(ctx, "bob")
	require.NoError(t, err)

	uploads := 0
	orig := uploadImage
	t.Cleanup(func() { uploadImage = orig })
	uploadImage = func(context.Context, string, string, []byte) error {
		uploads++
		return nil
	}

	img := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(img, pngHeader, 0o600))

	_, err = s.Send(ctx, "look at this", img)
	require.ErrorIs(t, err, common.ErrRecipientKeyMissing)
	assert.Zero(t, uploads, "nothing is uploaded when the caption cannot be encrypted")
	assert.Empty(t, fc.sent)
}

func TestChat_SaveImage(t *testing.T) {
	s, _ := newChat(t, &fakeChatClient{})

	orig := downloadImage
	t.Cleanup(func() { downloadImage = orig })
	var gotURL string
	downloadImage = func(_ context.Context, url string) ([]byte, error) {
		gotURL = url
		return pngHeader, nil
	}

	dir := filepath.Join(t.TempDir(), "downloads")
	path, err := s.SaveImage(context.Background(), "images/abc.png", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abc.png"), path)
	assert.Equal(t, "https://get.example/images/abc.png", gotURL)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}

func TestChat_ListenAppliesEvents(t *testing.T) {
	fc := &fakeChatClient{events: []api.Event{
		api.OnlineUsersEvent([]string{"bob"}),
		{Type: "unknown"},
	}}
	s, _ := newChat(t, fc)

	var updates []Update
	require.NoError(t, s.Listen(context.Background(), func(u Update) { updates = append(updates, u) }))

	require.Len(t, updates, 1)
	assert.Equal(t, []string{"bob"}, updates[0].Online)
}

func TestChat_SetUserResetsState(t *testing.T) {
	fc := &fakeChatClient{users: []api.User{{ID: "bob", Username: "bob"}}}
	s, _ := newChat(t, fc)
	ctx := context.Background()
	_, err := s.LoadUsers(ctx)
	require.NoError(t, err)
	s.HandleEvent(ctx, api.OnlineUsersEvent([]string{"bob"}))

	s.SetUser(nil)

	assert.Nil(t, s.Me())
	assert.Empty(t, s.Users())
	assert.Empty(t, s.Online())
	_, ok := s.Selected()
	assert.False(t, ok)
}
