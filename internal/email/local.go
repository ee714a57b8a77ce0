package email

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ZXMushroom63/adschat-server/internal/keyValue"
)

// Development-mode outbox: instead of talking to an smtp server, mails land
// in the key-value store and can be browsed on a localhost page.

type storedMail struct {
	Email   string
	Subject string
	Body    string
}

const outboxKey string = "dev_outbox"

func localhostListener() {
	r := chi.NewRouter()

	r.HandleFunc("/outbox", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")

		var htmlString []byte

		result, err := keyValue.Get(outboxKey)
		if err != nil {
			return
		}

		var mails []storedMail
		if result != "" {
			err = json.Unmarshal([]byte(result), &mails)
			if err != nil {
				return
			}
			htmlString = fmt.Append(htmlString, "<h1>Outbox:</h1>")
			for _, mail := range mails {
				htmlString = fmt.Appendf(htmlString, "<h3>%s — %s</h3>%s<hr>", mail.Email, mail.Subject, mail.Body)
			}
		} else {
			htmlString = fmt.Appendf(htmlString, "<h1>Outbox is empty</h1>\n")
		}

		_, err = w.Write(htmlString)
		if err != nil {
			fmt.Println(err)
			http.Error(w, "", http.StatusInternalServerError)
			return
		}
	})

	localAddress := "127.0.0.1:3010"
	fmt.Printf("View outgoing mails on http://%s/outbox\n", localAddress)
	err := http.ListenAndServe(localAddress, r)
	if err != nil {
		fmt.Println(err)
	}
}

func storeManual(email string, subject string, body string) error {
	result, err := keyValue.Get(outboxKey)
	if err != nil {
		return err
	}

	var mails []storedMail
	if len(result) != 0 {
		err = json.Unmarshal([]byte(result), &mails)
		if err != nil {
			return err
		}
	}

	mails = append(mails, storedMail{email, subject, body})

	jsonBytes, err := json.Marshal(mails)
	if err != nil {
		return err
	}

	return keyValue.Set(outboxKey, string(jsonBytes), time.Hour*1)
}
