package sqlinline

const QSelectBalance = `--sql 1e1f172d-ba50-4b29-b359-56f8f163f78a
select credit_balance
from users
where id = $1;
`

// QDeductCredits locks the user row, applies the deduction only when the
// balance covers it, and appends the ledger entry in the same statement.
// Returns no rows when the balance would go negative.
const QDeductCredits = `--sql 020e65ec-0d03-4555-9aea-a2ce3afd4ae3
with locked as (
    select id, credit_balance
    from users
    where id = $1
    for update
),
updated as (
    update users
    set credit_balance = credit_balance - $2, updated_at = now()
    where id = (select id from locked) and credit_balance >= $2
    returning credit_balance
)
insert into credit_transactions (id, user_id, job_id, type, amount, balance_before, balance_after, reason)
select gen_random_uuid(), $1, $3, 'deduct', -$2,
       (select credit_balance from locked),
       (select credit_balance from updated),
       $4
where exists (select 1 from updated)
returning balance_after;
`

// QRefundCredits claims the job's one-shot refund flag first; everything else
// only runs when that claim flipped a row. Racing refunds therefore produce
// exactly one ledger entry, with no caller-side locking.
const QRefundCredits = `--sql 6e2b1aca-fc1f-47a2-b524-05e545a2654c
with claimed as (
    update jobs
    set credits_refunded = true
    where id = $1
      and credits_refunded = false
      and status in ('failed', 'cancelled')
      and credits_cost > 0
    returning user_id, credits_cost
),
locked as (
    select id, credit_balance
    from users
    where id = (select user_id from claimed)
    for update
),
updated as (
    update users
    set credit_balance = credit_balance + (select credits_cost from claimed), updated_at = now()
    where id = (select id from locked)
    returning credit_balance
)
insert into credit_transactions (id, user_id, job_id, type, amount, balance_before, balance_after, reason)
select gen_random_uuid(), (select user_id from claimed), $1, 'refund',
       (select credits_cost from claimed),
       (select credit_balance from locked),
       (select credit_balance from updated),
       $2
where exists (select 1 from updated)
returning balance_after;
`

const QAdjustCredits = `--sql 86a7f372-e708-413e-964a-33a890fa6868
with locked as (
    select id, credit_balance
    from users
    where id = $1
    for update
),
updated as (
    update users
    set credit_balance = credit_balance + $2, updated_at = now()
    where id = (select id from locked)
    returning credit_balance
)
insert into credit_transactions (id, user_id, job_id, type, amount, balance_before, balance_after, reason)
select gen_random_uuid(), $1, null, $3, $2,
       (select credit_balance from locked),
       (select credit_balance from updated),
       $4
where exists (select 1 from updated)
returning balance_after;
`

const QSelectTransactions = `--sql 932f27b1-3838-454a-b8ba-ef811cf78acf
select id, user_id, job_id, type, amount, balance_before, balance_after, reason, created_at
from credit_transactions
where user_id = $1
order by created_at desc
limit $2;
`
